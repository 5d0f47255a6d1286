package domain

import "errors"

var (
	ErrSendingReplyFailed = errors.New("failed to send reply")
	ErrEmptyPrompt        = errors.New("empty prompt")
	ErrNotAuthorized      = errors.New("guild not authorized")
)

// DiscordMessageLimit is the maximum content length of a single message.
const DiscordMessageLimit = 2000
