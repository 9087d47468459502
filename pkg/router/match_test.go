package router

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/HadesArchitect/killrvideo-web/pkg/jsongraph"
)

func paths(matches []Match) []jsongraph.Path {
	out := make([]jsongraph.Path, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Path)
	}
	return out
}

func TestPatternMatch(t *testing.T) {
	pattern := MustParsePattern(`videosById[{keys:videoIds}].rating["count","total"]`)

	t.Run("one_match_per_key_and_property", func(t *testing.T) {
		matches := pattern.Match(jsongraph.PathSetOf("videosById", []string{"a", "b"}, "rating", []string{"count", "total"}))

		expected := []jsongraph.Path{
			jsongraph.PathOf("videosById", "a", "rating", "count"),
			jsongraph.PathOf("videosById", "a", "rating", "total"),
			jsongraph.PathOf("videosById", "b", "rating", "count"),
			jsongraph.PathOf("videosById", "b", "rating", "total"),
		}
		if diff := cmp.Diff(expected, paths(matches)); diff != "" {
			t.Fatalf("mismatch (-want +got):\n%s", diff)
		}

		id, ok := matches[2].Captured("videoIds")
		require.True(t, ok)
		require.Equal(t, jsongraph.StringKey("b"), id)
		require.Equal(t, jsongraph.StringKey("count"), matches[2].Property())
		_, ok = matches[2].Captured("userIds")
		require.False(t, ok)
		require.Equal(t, map[string]jsongraph.Key{"videoIds": jsongraph.StringKey("b")}, matches[2].Captures())
	})

	t.Run("idempotent", func(t *testing.T) {
		ps := jsongraph.PathSetOf("videosById", []string{"x", "y", "z"}, "rating", []string{"total", "count"})
		first := pattern.Match(ps)
		second := pattern.Match(ps)
		require.Equal(t, first, second)
	})

	t.Run("unknown_properties_are_ignored", func(t *testing.T) {
		matches := pattern.Match(jsongraph.PathSetOf("videosById", "a", "rating", []string{"count", "average"}))
		require.Equal(t, []jsongraph.Path{jsongraph.PathOf("videosById", "a", "rating", "count")}, paths(matches))
	})

	t.Run("literal_mismatch", func(t *testing.T) {
		require.Nil(t, pattern.Match(jsongraph.PathSetOf("usersById", "a", "rating", "count")))
		require.Nil(t, pattern.Match(jsongraph.PathSetOf("videosById", "a", "Rating", "count")))
	})

	t.Run("shorter_path", func(t *testing.T) {
		require.Nil(t, pattern.Match(jsongraph.PathSetOf("videosById", "a", "rating")))
	})

	t.Run("longer_path_keeps_suffix", func(t *testing.T) {
		matches := pattern.Match(jsongraph.PathSetOf("videosById", "a", "rating", "count", []string{"x", "y"}))
		require.Len(t, matches, 1)
		require.Equal(t, jsongraph.PathSetOf([]string{"x", "y"}), matches[0].Suffix)
	})

	t.Run("empty_key_set", func(t *testing.T) {
		require.Empty(t, pattern.Match(jsongraph.PathSetOf("videosById", []string{}, "rating", "count")))
	})

	t.Run("duplicate_requested_keys", func(t *testing.T) {
		matches := pattern.Match(jsongraph.PathSetOf("videosById", []string{"a", "a"}, "rating", "count"))
		require.Len(t, matches, 1)
	})

	t.Run("integer_capture_is_type_aware", func(t *testing.T) {
		list := MustParsePattern(`list[{integers:i}].name`)
		matches := list.Match(jsongraph.PathSetOf("list", []any{0, "1", 2}, "name"))
		require.Equal(t, []jsongraph.Path{
			jsongraph.PathOf("list", 0, "name"),
			jsongraph.PathOf("list", 2, "name"),
		}, paths(matches))
	})
}

func TestPatternMatchPath(t *testing.T) {
	pattern := MustParsePattern(`videosById[{keys:videoIds}].rating.rate`)

	m, ok := pattern.MatchPath(jsongraph.PathOf("videosById", "a", "rating", "rate"))
	require.True(t, ok)
	require.True(t, m.Path.Equal(jsongraph.PathOf("videosById", "a", "rating", "rate")))
	require.Empty(t, m.Suffix)

	m, ok = pattern.MatchPath(jsongraph.PathOf("videosById", "a", "rating", "rate", "extra"))
	require.True(t, ok)
	require.Equal(t, jsongraph.PathSetOf("extra"), m.Suffix)
	require.Len(t, m.Path, 4)

	_, ok = pattern.MatchPath(jsongraph.PathOf("videosById", "a", "rating"))
	require.False(t, ok)

	_, ok = pattern.MatchPath(jsongraph.PathOf("videosById", "a", "rating", "count"))
	require.False(t, ok)
}
