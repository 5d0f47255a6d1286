package command

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"runtime/metrics"
	"tarabot/internal/core/domain"
	"tarabot/internal/core/port"
	"time"

	"github.com/rs/zerolog/log"
)

// ComponentCounter reports how many message components are awaiting interaction.
type ComponentCounter interface {
	Len() int
}

type Debug struct {
	responder  port.Responder
	components ComponentCounter
	command    string
	started    time.Time
}

func NewDebug(responder port.Responder, components ComponentCounter, command string) *Debug {
	return &Debug{responder: responder, components: components, command: command, started: time.Now()}
}

func (d *Debug) GetCommand() string {
	return d.command
}

func (d *Debug) Description() string {
	return "Show runtime statistics of the bot"
}

func (d *Debug) Options() []domain.CommandOption {
	return nil
}

const kb = 1024
const debugTemplate = "```" + `
allocated mem: %d KB
goroutines running: %d
heap: %d KB
stack: %d KB
open components: %d
uptime: %s
compiled with %s for %s-%s
` + "```"
const metricCount = 3

func (d *Debug) Respond(ctx context.Context, _ time.Duration, interaction *domain.Interaction) error {
	l := log.With().
		Str("interactionId", interaction.ID).
		Str("channelId", interaction.ChannelID).
		Str("command", d.GetCommand()).
		Logger()

	data := make([]metrics.Sample, metricCount)
	data[0] = metrics.Sample{Name: "/memory/classes/heap/objects:bytes"}
	data[1] = metrics.Sample{Name: "/memory/classes/heap/stacks:bytes"}
	data[2] = metrics.Sample{Name: "/memory/classes/total:bytes"}

	metrics.Read(data)

	l.Info().Msg("handling request")

	goos, goarch := runtime.GOOS, runtime.GOARCH
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "GOOS":
				goos = setting.Value
			case "GOARCH":
				goarch = setting.Value
			}
		}
	}

	open := 0
	if d.components != nil {
		open = d.components.Len()
	}

	return d.responder.Reply(ctx, interaction, domain.Reply{
		Ephemeral: true,
		Content: fmt.Sprintf(
			debugTemplate,
			data[2].Value.Uint64()/kb,
			runtime.NumGoroutine(),
			data[0].Value.Uint64()/kb,
			data[1].Value.Uint64()/kb,
			open,
			time.Since(d.started).Round(time.Second),
			runtime.Version(), goos, goarch,
		),
	})
}
