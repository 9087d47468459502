package jsongraph

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/tidwall/gjson"
)

// MaxRangeLength bounds the number of integer keys a single requested range may expand to.
const MaxRangeLength = 1000

var ErrInvalidPath = errors.New("invalid path")

// ParsePathSets parses a JSON array of path sets such as
// [["videosById",["a","b"],"rating",["count","total"]]]. Each position is a string,
// an integer, a range object ({"from":0,"to":9} or {"from":0,"length":10}) or an array
// of those. Ranges are expanded into integer keys.
func ParsePathSets(raw string) ([]PathSet, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidPath)
	}

	root := gjson.Parse(raw)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: expected an array of path sets", ErrInvalidPath)
	}

	var (
		sets []PathSet
		err  error
	)
	root.ForEach(func(_, value gjson.Result) bool {
		var ps PathSet
		ps, err = parsePathSet(value)
		if err != nil {
			return false
		}
		sets = append(sets, ps)
		return true
	})
	if err != nil {
		return nil, err
	}

	return sets, nil
}

func parsePathSet(value gjson.Result) (PathSet, error) {
	if !value.IsArray() {
		return nil, fmt.Errorf("%w: path set %s is not an array", ErrInvalidPath, value.Raw)
	}

	positions := value.Array()
	if len(positions) == 0 {
		return nil, fmt.Errorf("%w: empty path set", ErrInvalidPath)
	}

	ps := make(PathSet, 0, len(positions))
	for _, pos := range positions {
		var ks KeySet
		if pos.IsArray() {
			ks = KeySet{}
			for _, member := range pos.Array() {
				keys, err := parseKeys(member)
				if err != nil {
					return nil, err
				}
				ks = append(ks, keys...)
			}
		} else {
			keys, err := parseKeys(pos)
			if err != nil {
				return nil, err
			}
			ks = keys
		}
		ps = append(ps, ks)
	}

	return ps, nil
}

// parseKeys parses a single key or a range.
func parseKeys(value gjson.Result) (KeySet, error) {
	switch value.Type {
	case gjson.String:
		return KeySet{StringKey(value.Str)}, nil
	case gjson.Number:
		n, err := parseInteger(value)
		if err != nil {
			return nil, err
		}
		return KeySet{IntKey(n)}, nil
	case gjson.JSON:
		if value.IsObject() {
			return parseRange(value)
		}
	}
	return nil, fmt.Errorf("%w: unsupported key %s", ErrInvalidPath, value.Raw)
}

func parseRange(value gjson.Result) (KeySet, error) {
	fromResult := value.Get("from")
	from := int64(0)
	if fromResult.Exists() {
		n, err := parseInteger(fromResult)
		if err != nil {
			return nil, err
		}
		from = n
	}

	var count int64
	switch {
	case value.Get("to").Exists():
		to, err := parseInteger(value.Get("to"))
		if err != nil {
			return nil, err
		}
		if to < from {
			return KeySet{}, nil
		}
		if uint64(to)-uint64(from) >= MaxRangeLength {
			return nil, fmt.Errorf("%w: range %s exceeds %d keys", ErrInvalidPath, value.Raw, MaxRangeLength)
		}
		count = to - from + 1
	case value.Get("length").Exists():
		n, err := parseInteger(value.Get("length"))
		if err != nil {
			return nil, err
		}
		if n <= 0 {
			return KeySet{}, nil
		}
		if n > MaxRangeLength {
			return nil, fmt.Errorf("%w: range %s exceeds %d keys", ErrInvalidPath, value.Raw, MaxRangeLength)
		}
		if from > math.MaxInt64-(n-1) {
			return nil, fmt.Errorf("%w: range %s overflows", ErrInvalidPath, value.Raw)
		}
		count = n
	default:
		return nil, fmt.Errorf("%w: range %s needs 'to' or 'length'", ErrInvalidPath, value.Raw)
	}

	ks := make(KeySet, 0, count)
	for i := int64(0); i < count; i++ {
		ks = append(ks, IntKey(from+i))
	}
	return ks, nil
}

func parseInteger(value gjson.Result) (int64, error) {
	if value.Type != gjson.Number {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrInvalidPath, value.Raw)
	}
	n, err := strconv.ParseInt(value.Raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrInvalidPath, value.Raw)
	}
	return n, nil
}

// ParsePath parses a JSON array of strings and integers into a concrete path.
func ParsePath(raw string) (Path, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidPath)
	}

	root := gjson.Parse(raw)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: expected an array of keys", ErrInvalidPath)
	}

	members := root.Array()
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	p := make(Path, 0, len(members))
	for _, member := range members {
		switch member.Type {
		case gjson.String:
			p = append(p, StringKey(member.Str))
		case gjson.Number:
			n, err := parseInteger(member)
			if err != nil {
				return nil, err
			}
			p = append(p, IntKey(n))
		default:
			return nil, fmt.Errorf("%w: unsupported key %s", ErrInvalidPath, member.Raw)
		}
	}

	return p, nil
}

// ParseArguments splits a JSON array of call arguments into its raw members.
// An empty input means no arguments.
func ParseArguments(raw string) ([]json.RawMessage, error) {
	if raw == "" {
		return nil, nil
	}
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("%w: malformed JSON arguments", ErrInvalidPath)
	}

	root := gjson.Parse(raw)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: expected an array of arguments", ErrInvalidPath)
	}

	args := make([]json.RawMessage, 0)
	root.ForEach(func(_, value gjson.Result) bool {
		args = append(args, json.RawMessage(value.Raw))
		return true
	})
	return args, nil
}
