package ipc

import (
	"fmt"
	"tarabot/internal/core/domain"
	"time"
)

type ActionKind uint8

const (
	// ActionEndTransmission closes the connection it is sent on.
	ActionEndTransmission ActionKind = iota
	ActionNoOp
	ActionGetCommandLogs
)

func (k ActionKind) String() string {
	switch k {
	case ActionEndTransmission:
		return "end_transmission"
	case ActionNoOp:
		return "no_op"
	case ActionGetCommandLogs:
		return "get_command_logs"
	default:
		return fmt.Sprintf("action(%d)", uint8(k))
	}
}

// ActionMessage is a request from a client. Fields other than Kind only carry
// meaning for the kinds that document them.
type ActionMessage struct {
	Kind ActionKind `cbor:"1,keyasint"`
	// LowerCutoff excludes logs at or before it (GetCommandLogs).
	LowerCutoff time.Time `cbor:"2,keyasint"`
	// UpperCutoff excludes logs at or after it, nil meaning now (GetCommandLogs).
	UpperCutoff *time.Time `cbor:"3,keyasint,omitempty"`
}

func EndTransmission() ActionMessage {
	return ActionMessage{Kind: ActionEndTransmission}
}

func NoOp() ActionMessage {
	return ActionMessage{Kind: ActionNoOp}
}

func GetCommandLogs(lower time.Time, upper *time.Time) ActionMessage {
	return ActionMessage{Kind: ActionGetCommandLogs, LowerCutoff: lower, UpperCutoff: upper}
}

type ResponseKind uint8

const (
	ResponseTransmissionEnded ResponseKind = iota
	ResponseActionCompleted
	ResponseActionFailed
	ResponseCommandLogs
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseTransmissionEnded:
		return "transmission_ended"
	case ResponseActionCompleted:
		return "action_completed"
	case ResponseActionFailed:
		return "action_failed"
	case ResponseCommandLogs:
		return "command_logs"
	default:
		return fmt.Sprintf("response(%d)", uint8(k))
	}
}

// ResponseMessage is the server's answer to exactly one ActionMessage.
type ResponseMessage struct {
	Kind ResponseKind `cbor:"1,keyasint"`
	// Error is the failure message (ActionFailed).
	Error       string                      `cbor:"2,keyasint,omitempty"`
	CommandLogs []domain.LoggedCommandEvent `cbor:"3,keyasint,omitempty"`
}

func TransmissionEnded() ResponseMessage {
	return ResponseMessage{Kind: ResponseTransmissionEnded}
}

func ActionCompleted() ResponseMessage {
	return ResponseMessage{Kind: ResponseActionCompleted}
}

func ActionFailed(message string) ResponseMessage {
	return ResponseMessage{Kind: ResponseActionFailed, Error: message}
}

// ActionFailedFromError reports err as a failed action.
func ActionFailedFromError(err error) ResponseMessage {
	return ActionFailed(err.Error())
}

func CommandLogs(logs []domain.LoggedCommandEvent) ResponseMessage {
	return ResponseMessage{Kind: ResponseCommandLogs, CommandLogs: logs}
}
