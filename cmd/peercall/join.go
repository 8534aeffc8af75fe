package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join an existing room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room := args[0]
		if room == "" {
			return fmt.Errorf("room ID cannot be empty")
		}

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		coord := newCoordinator(cfg, logger)
		if err := coord.JoinRoom(cmd.Context(), room, flagVideo, flagAudio); err != nil {
			return err
		}
		return runCall(coord)
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)
}
