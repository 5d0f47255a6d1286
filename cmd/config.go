package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"tarabot/internal/adapters/handler"
	"tarabot/internal/core/service"
	"tarabot/internal/ipc"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "TARABOT"

func setDefaults() {
	viper.SetDefault("bot.log_level", "info")
	viper.SetDefault("bot.allowed_guild_ids", []string{})
	viper.SetDefault("bot.allow_dms", true)
	viper.SetDefault("handler.timeout", handler.DefaultTimeout)
	viper.SetDefault("components.ttl", service.DefaultComponentTTL)
	viper.SetDefault("components.sweep_interval", service.DefaultSweepInterval)
	viper.SetDefault("chat.model", "openai/gpt-4.1-mini")
	viper.SetDefault("chat.context_timeout", 30*time.Minute)
	viper.SetDefault("chat.system_prompt", "You are tarabot, a friendly Discord bot. Keep answers short.")
	viper.SetDefault("ipc.socket_path", ipc.DefaultSocketPath())
	viper.SetDefault("logs.dir", defaultDataDir())
	viper.SetDefault("logs.flush_interval", service.DefaultFlushInterval)
	viper.SetDefault("metrics.listen_addr", "")
}

// initConfig loads defaults, the config file and TARABOT_* environment
// variables, then configures the global logger.
func initConfig(path string) error {
	setDefaults()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigType("toml")
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath(filepath.Join(defaultConfigDir(), "tarabot"))
	}

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case errors.As(err, &notFound) && path == "":
		log.Debug().Msg("no config file found, using defaults and environment")
	case err != nil:
		return fmt.Errorf("could not read config file: %w", err)
	}

	level := logLevel
	if level == "" {
		level = viper.GetString("bot.log_level")
	}

	return setupLogger(level, pretty)
}

func setupLogger(level string, human bool) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(lvl)
	if human {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
	}

	return nil
}

func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return dir
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "tarabot")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "tarabot")
	}

	return filepath.Join(home, ".local", "share", "tarabot")
}
