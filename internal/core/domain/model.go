package domain

import "time"

type Author string

const (
	User   Author = "user"
	System Author = "system"
)

type Prompt struct {
	Prompt string
	Author Author
	Model  Model
}

// InteractionKind distinguishes slash commands from message component clicks.
type InteractionKind int

const (
	SlashCommand InteractionKind = iota
	ComponentClick
)

// Interaction is a transport-neutral view of a Discord interaction. ID, AppID and
// Token are enough for a sender to answer or edit the original response.
type Interaction struct {
	Kind      InteractionKind
	ID        string
	AppID     string
	Token     string
	GuildID   string
	GuildName string
	ChannelID string
	MessageID string
	UserID    string
	Username  string
	// Command is set for slash commands, CustomID for component clicks.
	Command  string
	Options  map[string]string
	CustomID string
}

// IsDM reports whether the interaction happened outside a guild.
func (i *Interaction) IsDM() bool {
	return i.GuildID == ""
}

func (i *Interaction) Option(name string) string {
	if i.Options == nil {
		return ""
	}
	return i.Options[name]
}

// CommandOption is a string parameter of a slash command.
type CommandOption struct {
	Name        string
	Description string
	Required    bool
}

type ButtonStyle int

const (
	PrimaryButton ButtonStyle = iota
	SecondaryButton
	DangerButton
)

type Button struct {
	Label    string
	CustomID string
	Style    ButtonStyle
}

type Reply struct {
	Content   string
	Ephemeral bool
	Buttons   []Button
}

type ModelResponse struct {
	Response string
	Metadata ResponseMetadata
}

// Model names an OpenRouter model, e.g. "openai/gpt-4.1-mini".
type Model struct {
	Identifier string
}

type ResponseMetadata struct {
	Model            string
	CompletionTokens int
	TotalTokens      int
}

// LoggedCommandEvent is one line of the command usage log.
type LoggedCommandEvent struct {
	Name            string    `cbor:"1,keyasint"`
	Time            time.Time `cbor:"2,keyasint"`
	ChannelID       string    `cbor:"3,keyasint"`
	UserName        string    `cbor:"4,keyasint"`
	UserID          string    `cbor:"5,keyasint"`
	CalledFromGuild bool      `cbor:"6,keyasint"`
	GuildName       string    `cbor:"7,keyasint,omitempty"`
	GuildID         string    `cbor:"8,keyasint,omitempty"`
}

// NewLoggedCommandEvent builds a log entry for a slash command interaction.
func NewLoggedCommandEvent(in *Interaction, at time.Time) LoggedCommandEvent {
	return LoggedCommandEvent{
		Name:            in.Command,
		Time:            at,
		ChannelID:       in.ChannelID,
		UserName:        in.Username,
		UserID:          in.UserID,
		CalledFromGuild: !in.IsDM(),
		GuildName:       in.GuildName,
		GuildID:         in.GuildID,
	}
}
