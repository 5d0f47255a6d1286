package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	pretty   bool
)

var rootCmd = &cobra.Command{
	Use:   "tarabot",
	Short: "tarabot Discord bot",
	Long: `tarabot is a Discord bot with LLM chat.

It operates in three modes:
  daemon - Runs the bot and its local control socket
  logs   - Prints command usage recorded by a running bot
  ping   - Checks that a running bot answers on its control socket`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initConfig(cfgFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to config file (default ./config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level, overrides bot.log_level")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "Human readable console logs")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
