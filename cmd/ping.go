package cmd

import (
	"fmt"
	"tarabot/internal/ipc"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that a running bot answers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		start := time.Now()

		if _, err := request(cmd.Context(), viper.GetString("ipc.socket_path"), ipc.NoOp()); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "pong in %s\n", time.Since(start).Round(time.Microsecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
