package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTracksCmd(baseConfig *baseConfiguration) *cobra.Command {
	config := &engineConfiguration{Base: baseConfig}
	var cmd = &cobra.Command{
		Use:   "tracks",
		Short: "Validates the track registry and prints it as YAML",
		Long:  `Loads the track registry from the file given with the --tracks flag (or uses the built in default) and prints it in the format accepted by the --tracks flag.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := config.registry()
			if err != nil {
				return err
			}
			b, err := registry.Marshal()
			if err != nil {
				return fmt.Errorf("encoding track registry: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
	cmd.Flags().StringVar(&config.TracksFile, flagTracksFile, "", "track registry YAML file, built in \"root\" and \"none\" tracks are used when not set")
	return cmd
}
