package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"tarabot/internal/adapters/file"
	"tarabot/internal/adapters/generator"
	"tarabot/internal/adapters/handler"
	"tarabot/internal/adapters/metrics"
	"tarabot/internal/adapters/process"
	"tarabot/internal/adapters/receiver"
	"tarabot/internal/adapters/sender"
	"tarabot/internal/core/domain"
	"tarabot/internal/core/domain/command"
	"tarabot/internal/core/service"
	"tarabot/internal/ipc"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the bot",
	Long: `Run the bot in the foreground. Besides the Discord connection this:
  - Serves the control socket used by "logs" and "ping"
  - Expires message components such as Cancel buttons
  - Writes the command usage log
  - Serves Prometheus metrics if metrics.listen_addr is set`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	log.Info().Msg("starting tarabot...")

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	token := viper.GetString("discord.token")
	if token == "" {
		return errors.New("discord.token is required")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("failed initializing discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	s := sender.NewDiscord(session)
	prom := metrics.NewPrometheus()

	components := service.NewComponentMap(
		service.WithTTL(viper.GetDuration("components.ttl")),
		service.WithSweepInterval(viper.GetDuration("components.sweep_interval")),
		service.WithComponentMetrics(prom),
	)

	commandLog := file.NewCommandLog(viper.GetString("logs.dir"))
	commandLogger := service.NewCommandLogger(commandLog, viper.GetDuration("logs.flush_interval"))

	authorizer, err := service.NewAuthorizer(s)
	if err != nil {
		return err
	}

	registry := &command.Registry{}
	chat := command.NewChat(command.ChatParams{
		TextGenerator: generator.NewOpenRouter(viper.GetString("openrouter.api_key"),
			viper.GetString("chat.system_prompt")),
		Responder:     s,
		Components:    components,
		Model:         domain.Model{Identifier: viper.GetString("chat.model")},
		Command:       "chat",
		CacheDuration: viper.GetDuration("chat.context_timeout"),
	})
	registry.Register(chat)
	registry.Register(command.NewChatClearContext(chat, s, "forget"))
	registry.Register(command.NewDebug(s, components, "debug"))
	registry.Register(command.NewHelp(registry, s, "help"))

	interactions := handler.NewInteraction(handler.InteractionParams{
		CommandRegistry: registry,
		Components:      components,
		Responder:       s,
		Authorizer:      authorizer,
		CommandLog:      commandLogger,
		Timeout:         viper.GetDuration("handler.timeout"),
	})

	instances, err := process.NewInstanceCounter(cmd.Name())
	if err != nil {
		return err
	}

	// bind before connecting so a second instance fails early
	srv := ipc.NewServer(viper.GetString("ipc.socket_path"),
		receiver.NewActionReceiver(commandLog, prom), instances)
	if err := srv.Listen(); err != nil {
		return err
	}
	defer srv.Close()

	guildID := viper.GetString("discord.guild_id")
	session.AddHandler(interactions.Handle)
	session.AddHandlerOnce(func(ds *discordgo.Session, r *discordgo.Ready) {
		log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("connected to discord")
		if err := handler.RegisterCommands(ds, r.User.ID, guildID, registry); err != nil {
			log.Error().Err(err).Send()
		}
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	defer session.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx) })
	g.Go(func() error { return components.Watch(gctx, s) })
	g.Go(func() error { return commandLogger.Run(gctx) })
	if addr := viper.GetString("metrics.listen_addr"); addr != "" {
		g.Go(func() error { return prom.Serve(gctx, addr) })
	}

	log.Info().Msg("bot listening")

	err = g.Wait()
	log.Info().Msg("shutting down, waiting for running commands")
	interactions.Wait()

	if flushErr := commandLogger.Flush(); flushErr != nil {
		log.Error().Err(flushErr).Msg("failed to write remaining command log")
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
