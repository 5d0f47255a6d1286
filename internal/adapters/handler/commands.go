package handler

import (
	"fmt"
	"tarabot/internal/core/port"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// CommandOverwriter is the part of *discordgo.Session that publishes slash commands.
type CommandOverwriter interface {
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand,
		options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// RegisterCommands replaces the published slash commands with those in the
// registry. An empty guildID publishes them globally.
func RegisterCommands(s CommandOverwriter, appID, guildID string, registry port.CommandRegistry) error {
	names := registry.ListCommands()
	commands := make([]*discordgo.ApplicationCommand, 0, len(names))

	for _, name := range names {
		cmd, err := registry.Get(name)
		if err != nil {
			return err
		}

		appCmd := &discordgo.ApplicationCommand{
			Name:        cmd.GetCommand(),
			Description: cmd.Description(),
		}
		for _, opt := range cmd.Options() {
			appCmd.Options = append(appCmd.Options, &discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        opt.Name,
				Description: opt.Description,
				Required:    opt.Required,
			})
		}
		commands = append(commands, appCmd)
	}

	if _, err := s.ApplicationCommandBulkOverwrite(appID, guildID, commands); err != nil {
		return fmt.Errorf("failed to register slash commands: %w", err)
	}

	log.Info().Strs("commands", names).Str("guildId", guildID).Msg("registered slash commands")

	return nil
}
