package command

import (
	"context"
	"fmt"
	"tarabot/internal/core/domain"
	"tarabot/internal/core/port"
	"time"

	"github.com/rs/zerolog/log"
)

type ChatClearContext struct {
	chat      *Chat
	responder port.Responder
	command   string
}

func NewChatClearContext(chat *Chat, responder port.Responder, command string) *ChatClearContext {
	return &ChatClearContext{chat: chat, responder: responder, command: command}
}

func (c *ChatClearContext) GetCommand() string {
	return c.command
}

func (c *ChatClearContext) Description() string {
	return "Forget the chat history of this channel"
}

func (c *ChatClearContext) Options() []domain.CommandOption {
	return nil
}

func (c *ChatClearContext) Respond(ctx context.Context, _ time.Duration, interaction *domain.Interaction) error {
	l := log.With().
		Str("interactionId", interaction.ID).
		Str("channelId", interaction.ChannelID).
		Str("command", c.GetCommand()).
		Logger()

	l.Info().Msg("handling request")

	size, ok := c.chat.Clear(interaction.ChannelID)
	if !ok {
		l.Debug().Msg("no conversation in cache")
		return c.reply(ctx, interaction, "no conversation context")
	}

	l.Debug().Int("messages", size).Msg("cleared conversation cache")

	var plural string
	if size != 1 {
		plural = "s"
	}

	return c.reply(ctx, interaction, fmt.Sprintf("cleared conversation context with %d message%s", size, plural))
}

func (c *ChatClearContext) reply(ctx context.Context, interaction *domain.Interaction, text string) error {
	err := c.responder.Reply(ctx, interaction, domain.Reply{Content: text, Ephemeral: true})
	if err != nil {
		return fmt.Errorf("error sending cache clearing response: %w", err)
	}

	return nil
}
