package handler

import (
	"context"
	"fmt"
	"sync"
	"tarabot/internal/core/domain"
	"tarabot/internal/core/port"
	"tarabot/internal/core/service"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

const (
	expired        = "This interaction has expired."
	DefaultTimeout = 2 * time.Minute
)

type Interaction struct {
	commandRegistry port.CommandRegistry
	components      port.ComponentRegistry
	responder       port.Responder
	authorizer      service.Authorizer
	commandLog      port.CommandLogger
	timeout         time.Duration
	now             func() time.Time

	running sync.WaitGroup
}

type InteractionParams struct {
	CommandRegistry port.CommandRegistry
	Components      port.ComponentRegistry
	Responder       port.Responder
	Authorizer      service.Authorizer
	CommandLog      port.CommandLogger
	Timeout         time.Duration
}

func NewInteraction(p InteractionParams) *Interaction {
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}

	return &Interaction{
		commandRegistry: p.CommandRegistry,
		components:      p.Components,
		responder:       p.Responder,
		authorizer:      p.Authorizer,
		commandLog:      p.CommandLog,
		timeout:         p.Timeout,
		now:             time.Now,
	}
}

// Handle is registered with the discord session for InteractionCreate events.
func (h *Interaction) Handle(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	interaction, ok := toDomain(s, ic)
	if !ok {
		log.Debug().Msg("ignoring unsupported interaction")
		return
	}

	h.Dispatch(context.Background(), interaction)
}

// Dispatch routes slash commands to their command and component clicks to the
// component registry. Commands run in the background; see Wait.
func (h *Interaction) Dispatch(ctx context.Context, interaction *domain.Interaction) {
	switch interaction.Kind {
	case domain.SlashCommand:
		h.dispatchCommand(ctx, interaction)
	case domain.ComponentClick:
		h.dispatchComponent(ctx, interaction)
	}
}

// Wait blocks until every running command has returned.
func (h *Interaction) Wait() {
	h.running.Wait()
}

func (h *Interaction) dispatchCommand(ctx context.Context, interaction *domain.Interaction) {
	log.Debug().Str("command", interaction.Command).Str("userId", interaction.UserID).Msg("received command")

	if h.authorizer != nil && !h.authorizer.IsAuthorized(ctx, interaction) {
		return
	}

	if h.commandLog != nil {
		h.commandLog.Enqueue(domain.NewLoggedCommandEvent(interaction, h.now()))
	}

	commandHandler, err := h.commandRegistry.Get(interaction.Command)
	if err != nil {
		log.Debug().Str("command", interaction.Command).Msg("no handler for command")
		h.replyEphemeral(ctx, interaction, fmt.Sprintf("Command %q doesn't exist.", interaction.Command))
		return
	}

	h.running.Add(1)
	go func() {
		defer h.running.Done()

		err := commandHandler.Respond(context.WithoutCancel(ctx), h.timeout, interaction)
		if err != nil {
			log.Err(err).Str("command", interaction.Command).Msg("failed to respond to command")
		}
	}()
}

func (h *Interaction) dispatchComponent(ctx context.Context, interaction *domain.Interaction) {
	log.Debug().Str("customId", interaction.CustomID).Str("userId", interaction.UserID).Msg("received component click")

	found, err := h.components.Run(ctx, interaction.CustomID, interaction, h.responder)
	if err != nil {
		log.Err(err).Str("customId", interaction.CustomID).Msg("component handler failed")
	}
	if !found {
		h.replyEphemeral(ctx, interaction, expired)
	}
}

func (h *Interaction) replyEphemeral(ctx context.Context, interaction *domain.Interaction, text string) {
	err := h.responder.Reply(ctx, interaction, domain.Reply{Content: text, Ephemeral: true})
	if err != nil {
		log.Err(err).Str("interactionId", interaction.ID).Msg("failed to send reply")
	}
}

func toDomain(s *discordgo.Session, ic *discordgo.InteractionCreate) (*domain.Interaction, bool) {
	if ic == nil || ic.Interaction == nil {
		return nil, false
	}

	interaction := &domain.Interaction{
		ID:        ic.ID,
		AppID:     ic.AppID,
		Token:     ic.Token,
		GuildID:   ic.GuildID,
		ChannelID: ic.ChannelID,
	}

	if ic.Message != nil {
		interaction.MessageID = ic.Message.ID
	}

	user := ic.User
	if ic.Member != nil && ic.Member.User != nil {
		user = ic.Member.User
	}
	if user != nil {
		interaction.UserID = user.ID
		interaction.Username = user.Username
	}

	if interaction.GuildID != "" && s != nil && s.State != nil {
		if guild, err := s.State.Guild(interaction.GuildID); err == nil {
			interaction.GuildName = guild.Name
		}
	}

	switch ic.Type {
	case discordgo.InteractionApplicationCommand:
		data := ic.ApplicationCommandData()
		interaction.Kind = domain.SlashCommand
		interaction.Command = data.Name
		interaction.Options = make(map[string]string, len(data.Options))
		for _, opt := range data.Options {
			interaction.Options[opt.Name] = fmt.Sprint(opt.Value)
		}
	case discordgo.InteractionMessageComponent:
		interaction.Kind = domain.ComponentClick
		interaction.CustomID = ic.MessageComponentData().CustomID
	default:
		return nil, false
	}

	return interaction, true
}
