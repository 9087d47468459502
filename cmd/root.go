// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	ratingsBackendFlag = "ratings-backend"
	ratingsBackendConf = "ratings.backend"
	ratingsURIFlag     = "ratings-uri"
	ratingsURIConf     = "ratings.uri"
)

// NewRootCommand enables all children commands to read flags from CLI flags, environment variables prefixed with KILLRVIDEO, or config.yaml (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("KILLRVIDEO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/killrvideo", "$HOME/.killrvideo", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetDefault(ratingsBackendFlag, "")
	viper.SetDefault(ratingsURIFlag, "")
	err := viper.ReadInConfig()
	if err == nil {
		viper.SetDefault(ratingsBackendFlag, viper.Get(ratingsBackendConf))
		viper.SetDefault(ratingsURIFlag, viper.Get(ratingsURIConf))
	}

	return &cobra.Command{
		Use:   "killrvideo",
		Short: "The KillrVideo web tier, answering graph queries from the KillrVideo UI",
		Long: `The KillrVideo web tier, answering graph queries from the KillrVideo UI.

It serves a Falcor style /model.json endpoint and routes every requested path to the backend
service owning it, batching and fanning out the backend calls.`,
	}
}
