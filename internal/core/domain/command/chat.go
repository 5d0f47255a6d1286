package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"tarabot/internal/core/domain"
	"tarabot/internal/core/port"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// CancelPrefix starts the custom ID of every chat cancel button.
	CancelPrefix = "chat-cancel"
	PromptOption = "prompt"

	thinking    = "Thinking…"
	canceled    = "**Canceled**"
	notYours    = "Only the person who asked can cancel this."
	editTimeout = 10 * time.Second
)

type Chat struct {
	textGenerator port.TextGenerator
	responder     port.Responder
	components    port.ComponentRegistry
	model         domain.Model
	cacheDuration time.Duration
	command       string
	cache         *sync.Map
	now           func() time.Time

	l *zerolog.Logger
}

// Conversation is the recent history of a channel, sent along with every prompt.
type Conversation struct {
	mu        sync.Mutex
	timestamp time.Time
	messages  []domain.Prompt
}

type ChatParams struct {
	TextGenerator port.TextGenerator
	Responder     port.Responder
	Components    port.ComponentRegistry
	Model         domain.Model
	Command       string
	CacheDuration time.Duration
}

func NewChat(p ChatParams) *Chat {
	logger := log.With().
		Str("command", p.Command).
		Str("handler", "chat").
		Logger()

	return &Chat{
		textGenerator: p.TextGenerator,
		responder:     p.Responder,
		components:    p.Components,
		model:         p.Model,
		cacheDuration: p.CacheDuration,
		command:       p.Command,
		cache:         &sync.Map{},
		now:           time.Now,
		l:             &logger,
	}
}

func (c *Chat) GetCommand() string {
	return c.command
}

func (c *Chat) Description() string {
	return "Ask the language model something"
}

func (c *Chat) Options() []domain.CommandOption {
	return []domain.CommandOption{
		{Name: PromptOption, Description: "What to ask", Required: true},
	}
}

// Respond answers with a placeholder carrying a Cancel button, then replaces it
// with the model's answer. The button is unregistered as soon as the answer is in.
func (c *Chat) Respond(ctx context.Context, timeout time.Duration, interaction *domain.Interaction) error {
	l := c.l.With().
		Str("interactionId", interaction.ID).
		Str("channelId", interaction.ChannelID).
		Str("func", "Respond").
		Logger()

	prompt := strings.TrimSpace(interaction.Option(PromptOption))
	if prompt == "" {
		l.Debug().Msg("empty prompt")
		err := c.responder.Reply(ctx, interaction, domain.Reply{Content: "Please ask me something.", Ephemeral: true})
		if err != nil {
			return err
		}
		return domain.ErrEmptyPrompt
	}

	l.Debug().Str("prompt", prompt).Str("username", interaction.Username).Msg("handling request")

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	genCtx, cancelGen := context.WithCancel(ctx)
	defer cancelGen()

	id, err := cancelID(interaction.ChannelID)
	if err != nil {
		return err
	}

	var wasCanceled atomic.Bool
	c.components.Insert(id, func(ctx context.Context, click *domain.Interaction, r port.Responder) error {
		if click.UserID != interaction.UserID {
			return r.Reply(ctx, click, domain.Reply{Content: notYours, Ephemeral: true})
		}

		l.Debug().Str("userId", click.UserID).Msg("generation canceled by user")
		wasCanceled.Store(true)
		cancelGen()

		return r.Acknowledge(ctx, click)
	}, func(ctx context.Context, _ string, r port.Responder) error {
		return r.RemoveButtons(ctx, interaction)
	})
	defer func() {
		if err := c.components.Timeout(id); err != nil {
			l.Warn().Err(err).Str("customId", id).Msg("cancel button already gone")
		}
	}()

	err = c.responder.Reply(ctx, interaction, domain.Reply{
		Content: thinking,
		Buttons: []domain.Button{{Label: "Cancel", CustomID: id, Style: domain.DangerButton}},
	})
	if err != nil {
		return err
	}

	conversation := c.conversationFor(interaction.ChannelID)
	question := domain.Prompt{
		Author: domain.User,
		Prompt: interaction.Username + ": " + prompt,
		Model:  c.model,
	}

	response, err := c.textGenerator.GenerateFromPrompt(genCtx, append(conversation.snapshot(), question))

	var content string
	switch {
	case err != nil && wasCanceled.Load():
		content = canceled
		err = nil
	case errors.Is(err, context.DeadlineExceeded):
		content = "Timed out waiting for an answer."
	case err != nil:
		l.Error().Err(err).Msg("failed to generate response")
		content = fmt.Sprintf("failed to generate response: %v", err)
	default:
		conversation.add(c.now(), question, domain.Prompt{Author: domain.System, Prompt: response.Response})
		content = response.Response
		l.Debug().Str("model", response.Metadata.Model).Int("tokens", response.Metadata.TotalTokens).
			Msg("generated response")
	}

	editCtx, cancelEdit := context.WithTimeout(context.WithoutCancel(ctx), editTimeout)
	defer cancelEdit()

	if editErr := c.responder.EditReply(editCtx, interaction, domain.Reply{Content: content}); editErr != nil {
		return editErr
	}

	return err
}

// Clear drops the conversation of a channel and reports how many messages it held.
func (c *Chat) Clear(channelID string) (int, bool) {
	conv, ok := c.cache.LoadAndDelete(channelID)
	if !ok {
		return 0, false
	}

	conversation, ok := conv.(*Conversation)
	if !ok {
		return 0, false
	}

	conversation.mu.Lock()
	defer conversation.mu.Unlock()

	return len(conversation.messages), true
}

func (c *Chat) conversationFor(channelID string) *Conversation {
	conv, _ := c.cache.LoadOrStore(channelID, &Conversation{})
	conversation, _ := conv.(*Conversation)

	conversation.mu.Lock()
	defer conversation.mu.Unlock()

	if !conversation.timestamp.IsZero() && c.now().Sub(conversation.timestamp) > c.cacheDuration {
		c.l.Debug().Str("channelId", channelID).Msg("conversation expired, starting over")
		conversation.messages = nil
	}

	return conversation
}

func (conv *Conversation) snapshot() []domain.Prompt {
	conv.mu.Lock()
	defer conv.mu.Unlock()

	prompts := make([]domain.Prompt, len(conv.messages), len(conv.messages)+1)
	copy(prompts, conv.messages)

	return prompts
}

func (conv *Conversation) add(at time.Time, prompts ...domain.Prompt) {
	conv.mu.Lock()
	defer conv.mu.Unlock()

	conv.timestamp = at
	conv.messages = append(conv.messages, prompts...)
}

func cancelID(channelID string) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("failed to create button id: %w", err)
	}

	return fmt.Sprintf("%s:%s/%s", CancelPrefix, channelID, id), nil
}
