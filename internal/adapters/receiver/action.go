package receiver

import (
	"context"
	"tarabot/internal/core/port"
	"tarabot/internal/ipc"
	"time"

	"github.com/rs/zerolog/log"
)

// ActionReceiver answers IPC actions for the running bot.
type ActionReceiver struct {
	logs    port.CommandLogReader
	metrics port.Metrics
	now     func() time.Time
}

func NewActionReceiver(logs port.CommandLogReader, metrics port.Metrics) *ActionReceiver {
	return &ActionReceiver{
		logs:    logs,
		metrics: metrics,
		now:     time.Now,
	}
}

func (r *ActionReceiver) Perform(_ context.Context, action ipc.ActionMessage) ipc.ResponseMessage {
	if r.metrics != nil {
		r.metrics.ActionPerformed(action.Kind.String())
	}

	switch action.Kind {
	case ipc.ActionNoOp:
		return ipc.ActionCompleted()
	case ipc.ActionGetCommandLogs:
		return r.commandLogs(action)
	default:
		// end of transmission is answered by the server itself
		log.Warn().Stringer("action", action.Kind).Msg("receiver got unsupported action")
		return ipc.ActionFailed("unsupported action " + action.Kind.String())
	}
}

func (r *ActionReceiver) commandLogs(action ipc.ActionMessage) ipc.ResponseMessage {
	upper := r.now()
	if action.UpperCutoff != nil {
		upper = *action.UpperCutoff
	}

	events, err := r.logs.Read(action.LowerCutoff, upper)
	if err != nil {
		log.Error().Err(err).Msg("could not read command logs")
		return ipc.ActionFailedFromError(err)
	}

	log.Debug().Int("events", len(events)).Msg("sending command logs")

	return ipc.CommandLogs(events)
}
