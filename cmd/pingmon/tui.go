package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wellsgz/pingmon/internal/ipc"
	"github.com/wellsgz/pingmon/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Attach a live dashboard to a running monitor",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		socket, err := resolveSocket()
		if err != nil {
			return err
		}
		client, err := ipc.Connect(socket)
		if err != nil {
			return fmt.Errorf("%w (is 'pingmon serve' running?)", err)
		}
		defer client.Close()

		return tui.Run(cmd.Context(), client, socket)
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
