package main

import (
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new room and wait for others",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		coord := newCoordinator(cfg, logger)
		if _, err := coord.CreateRoom(cmd.Context(), flagVideo, flagAudio); err != nil {
			return err
		}
		return runCall(coord)
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
}
