package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestMustBindPFlag(t *testing.T) {
	t.Cleanup(viper.Reset)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("http-addr", "0.0.0.0:3000", "")
	require.NoError(t, flags.Parse([]string{"--http-addr", "127.0.0.1:8080"}))

	MustBindPFlag("http.addr", flags.Lookup("http-addr"))
	require.Equal(t, "127.0.0.1:8080", viper.GetString("http.addr"))

	require.Panics(t, func() {
		MustBindPFlag("missing", nil)
	})
}

func TestMustBindEnv(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("KILLRVIDEO_LOG_LEVEL", "debug")

	MustBindEnv("log.level", "KILLRVIDEO_LOG_LEVEL")
	require.Equal(t, "debug", viper.GetString("log.level"))
}

func TestPrepareTempConfigFile(t *testing.T) {
	PrepareTempConfigFile(t, "log:\n  level: debug\n")

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(home, ".killrvideo", "config.yaml"))
	require.NoError(t, err)
	require.Contains(t, string(content), "level: debug")
}
