package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	logsSince time.Duration
	logsUntil time.Duration
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print commands used on a running bot",
	Long: `Ask a running bot for its command usage log and print it as a table.
The window is (now - since, now - until), both ends exclusive.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		now := time.Now()
		lower := now.Add(-logsSince)

		var upper *time.Time
		if logsUntil > 0 {
			u := now.Add(-logsUntil)
			upper = &u
		}

		events, err := fetchLogs(cmd.Context(), viper.GetString("ipc.socket_path"), lower, upper)
		if err != nil {
			return err
		}

		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no commands logged in this window")
			return nil
		}

		return printLogs(cmd.OutOrStdout(), events)
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().DurationVar(&logsSince, "since", 24*time.Hour, "How far back to look")
	logsCmd.Flags().DurationVar(&logsUntil, "until", 0, "Ignore commands newer than this, 0 means now")
}
