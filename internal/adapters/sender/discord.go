package sender

import (
	"context"
	"fmt"
	"tarabot/internal/core/domain"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// Session is the part of *discordgo.Session used to answer interactions.
type Session interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse,
		options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit,
		options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type DiscordSender struct {
	session Session
}

func NewDiscord(session Session) *DiscordSender {
	return &DiscordSender{session: session}
}

func (s *DiscordSender) Reply(ctx context.Context, in *domain.Interaction, reply domain.Reply) error {
	data := &discordgo.InteractionResponseData{
		Content:    Truncate(reply.Content, domain.DiscordMessageLimit),
		Components: components(reply.Buttons),
	}
	if reply.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}

	err := s.session.InteractionRespond(target(in), &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}, discordgo.WithContext(ctx))
	if err != nil {
		log.Error().Err(err).Str("interactionId", in.ID).Msg("failed to send interaction response")
		return fmt.Errorf("%w: %w", domain.ErrSendingReplyFailed, err)
	}

	return nil
}

func (s *DiscordSender) Acknowledge(ctx context.Context, in *domain.Interaction) error {
	err := s.session.InteractionRespond(target(in), &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}, discordgo.WithContext(ctx))
	if err != nil {
		log.Error().Err(err).Str("interactionId", in.ID).Msg("failed to acknowledge interaction")
		return fmt.Errorf("%w: %w", domain.ErrSendingReplyFailed, err)
	}

	return nil
}

func (s *DiscordSender) EditReply(ctx context.Context, in *domain.Interaction, reply domain.Reply) error {
	content := Truncate(reply.Content, domain.DiscordMessageLimit)
	rows := components(reply.Buttons)

	_, err := s.session.InteractionResponseEdit(target(in), &discordgo.WebhookEdit{
		Content:    &content,
		Components: &rows,
	}, discordgo.WithContext(ctx))
	if err != nil {
		log.Error().Err(err).Str("interactionId", in.ID).Msg("failed to edit interaction response")
		return fmt.Errorf("%w: %w", domain.ErrSendingReplyFailed, err)
	}

	return nil
}

func (s *DiscordSender) RemoveButtons(ctx context.Context, in *domain.Interaction) error {
	rows := []discordgo.MessageComponent{}

	_, err := s.session.InteractionResponseEdit(target(in), &discordgo.WebhookEdit{
		Components: &rows,
	}, discordgo.WithContext(ctx))
	if err != nil {
		log.Error().Err(err).Str("interactionId", in.ID).Msg("failed to remove buttons")
		return fmt.Errorf("%w: %w", domain.ErrSendingReplyFailed, err)
	}

	log.Debug().Str("interactionId", in.ID).Msg("removed buttons")

	return nil
}

// Truncate shortens s to at most limit runes, marking the cut with an ellipsis.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit-1]) + "…"
}

func target(in *domain.Interaction) *discordgo.Interaction {
	return &discordgo.Interaction{ID: in.ID, AppID: in.AppID, Token: in.Token}
}

func components(buttons []domain.Button) []discordgo.MessageComponent {
	if len(buttons) == 0 {
		return []discordgo.MessageComponent{}
	}

	row := discordgo.ActionsRow{}
	for _, b := range buttons {
		row.Components = append(row.Components, discordgo.Button{
			Label:    b.Label,
			CustomID: b.CustomID,
			Style:    buttonStyle(b.Style),
		})
	}

	return []discordgo.MessageComponent{row}
}

func buttonStyle(style domain.ButtonStyle) discordgo.ButtonStyle {
	switch style {
	case domain.SecondaryButton:
		return discordgo.SecondaryButton
	case domain.DangerButton:
		return discordgo.DangerButton
	default:
		return discordgo.PrimaryButton
	}
}
