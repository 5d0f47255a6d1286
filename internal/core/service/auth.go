package service

import (
	"context"
	"errors"
	"slices"
	"tarabot/internal/core/domain"
	"tarabot/internal/core/port"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Authorizer interface {
	IsAuthorized(ctx context.Context, interaction *domain.Interaction) bool
}

// GuildAuthorizer restricts the bot to an allowlist of guilds. An empty
// allowlist admits every guild.
type GuildAuthorizer struct {
	allowlist []string
	allowDMs  bool
	responder port.Responder
}

func NewAuthorizer(responder port.Responder) (*GuildAuthorizer, error) {
	var list []string

	err := viper.UnmarshalKey("bot.allowed_guild_ids", &list)
	if err != nil {
		return nil, errors.New("failed to load allowed guild IDs")
	}

	return &GuildAuthorizer{
		allowlist: list,
		allowDMs:  viper.GetBool("bot.allow_dms"),
		responder: responder,
	}, nil
}

const forbidden = "This bot is not enabled here."

func (a *GuildAuthorizer) IsAuthorized(ctx context.Context, interaction *domain.Interaction) bool {
	if interaction.IsDM() {
		if a.allowDMs {
			return true
		}
	} else if len(a.allowlist) == 0 || slices.Contains(a.allowlist, interaction.GuildID) {
		return true
	}

	log.Debug().Str("guildId", interaction.GuildID).Str("userId", interaction.UserID).
		Msg("rejected interaction from unauthorized location")

	err := a.responder.Reply(ctx, interaction, domain.Reply{Content: forbidden, Ephemeral: true})
	if err != nil {
		log.Err(err).Msg("failed to send unauthorized warning")
	}

	return false
}
