package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/HadesArchitect/killrvideo-web/internal/build"
)

// NewVersionCommand returns the command to get the killrvideo version
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Return the KillrVideo web tier version",
		Long:  "Return the KillrVideo web tier version.",
		RunE:  version,
		Args:  cobra.NoArgs,
	}

	return cmd
}

// print out the built version
func version(_ *cobra.Command, _ []string) error {
	log.Printf("KillrVideo Version %s Date %s commit id %s ", build.Version, build.Date, build.Commit)
	return nil
}
