package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"tarabot/internal/core/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct {
	err error
}

func (w failingWriter) Write(_ []byte) (int, error) {
	return 0, w.err
}

func TestWriteFrame_EmptyPayload(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteFrame(&buf, nil))
	assert.Equal(t, []byte{0, 0, 0, 0}, buf.Bytes())

	payload, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, payload)
}

func TestWriteFrame_LengthPrefixIsLittleEndian(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte{0xAB}, 258)

	require.NoError(t, WriteFrame(&buf, payload))

	raw := buf.Bytes()
	require.Len(t, raw, 4+len(payload))
	assert.Equal(t, []byte{0x02, 0x01, 0x00, 0x00}, raw[:4])
	assert.Equal(t, payload, raw[4:])
}

func TestWriteMessage_PrefixMatchesPayload(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteMessage(&buf, ActionFailed("no such command log")))

	raw := buf.Bytes()
	size := binary.LittleEndian.Uint32(raw[:4])
	assert.Equal(t, uint32(len(raw)-4), size)

	expected, err := encMode.Marshal(ActionFailed("no such command log"))
	require.NoError(t, err)
	assert.Equal(t, expected, raw[4:])
}

func TestMessageRoundTrip(t *testing.T) {
	lower := time.Date(2024, 1, 2, 3, 4, 5, 600, time.UTC)
	upper := time.Date(2024, 2, 2, 3, 4, 5, 0, time.UTC)
	logs := []domain.LoggedCommandEvent{
		{
			Name:            "chat",
			Time:            time.Date(2024, 1, 15, 10, 0, 0, 123456789, time.UTC),
			ChannelID:       "1001",
			UserName:        "alice",
			UserID:          "42",
			CalledFromGuild: true,
			GuildName:       "guild",
			GuildID:         "7",
		},
		{
			Name:      "help",
			Time:      time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC),
			ChannelID: "1002",
			UserName:  "bob",
			UserID:    "43",
		},
	}

	actions := []struct {
		name string
		msg  ActionMessage
	}{
		{name: "end transmission", msg: EndTransmission()},
		{name: "no-op", msg: NoOp()},
		{name: "command logs without upper cutoff", msg: GetCommandLogs(lower, nil)},
		{name: "command logs with upper cutoff", msg: GetCommandLogs(lower, &upper)},
	}

	for _, tc := range actions {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteMessage(&buf, tc.msg))

			got, err := ReadMessage[ActionMessage](&buf)
			require.NoError(t, err)

			assert.Equal(t, tc.msg.Kind, got.Kind)
			assert.True(t, tc.msg.LowerCutoff.Equal(got.LowerCutoff))
			if tc.msg.UpperCutoff == nil {
				assert.Nil(t, got.UpperCutoff)
			} else {
				require.NotNil(t, got.UpperCutoff)
				assert.True(t, tc.msg.UpperCutoff.Equal(*got.UpperCutoff))
			}
			assert.Zero(t, buf.Len(), "exactly one frame consumed")
		})
	}

	responses := []struct {
		name string
		msg  ResponseMessage
	}{
		{name: "transmission ended", msg: TransmissionEnded()},
		{name: "action completed", msg: ActionCompleted()},
		{name: "action failed", msg: ActionFailed("file not found")},
		{name: "command logs", msg: CommandLogs(logs)},
	}

	for _, tc := range responses {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteMessage(&buf, tc.msg))

			got, err := ReadMessage[ResponseMessage](&buf)
			require.NoError(t, err)

			assert.Equal(t, tc.msg.Kind, got.Kind)
			assert.Equal(t, tc.msg.Error, got.Error)
			require.Len(t, got.CommandLogs, len(tc.msg.CommandLogs))
			for i := range tc.msg.CommandLogs {
				want, have := tc.msg.CommandLogs[i], got.CommandLogs[i]
				assert.True(t, want.Time.Equal(have.Time))
				want.Time, have.Time = time.Time{}, time.Time{}
				assert.Equal(t, want, have)
			}
		})
	}
}

func TestReadMessage_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		wantErr error
		wantEOF error
	}{
		{
			name:    "empty stream",
			input:   nil,
			wantErr: ErrIO,
			wantEOF: io.EOF,
		},
		{
			name:    "truncated length",
			input:   []byte{0x05, 0x00},
			wantErr: ErrIO,
			wantEOF: io.ErrUnexpectedEOF,
		},
		{
			name:    "stream closes before payload",
			input:   []byte{0x05, 0x00, 0x00, 0x00, 0x01},
			wantErr: ErrIO,
			wantEOF: io.ErrUnexpectedEOF,
		},
		{
			name:    "length without any payload",
			input:   []byte{0x05, 0x00, 0x00, 0x00},
			wantErr: ErrIO,
			wantEOF: io.ErrUnexpectedEOF,
		},
		{
			name:    "payload is not cbor",
			input:   []byte{0x02, 0x00, 0x00, 0x00, 0xff, 0xff},
			wantErr: ErrSerialization,
		},
		{
			name:    "payload has wrong shape",
			input:   append([]byte{0x06, 0x00, 0x00, 0x00}, 0x65, 'h', 'e', 'l', 'l', 'o'),
			wantErr: ErrSerialization,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadMessage[ActionMessage](bytes.NewReader(tt.input))
			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantEOF != nil {
				assert.ErrorIs(t, err, tt.wantEOF)
			}
		})
	}
}

func TestWriteMessage_WriteFailure(t *testing.T) {
	cause := errors.New("broken pipe")

	err := WriteMessage(failingWriter{err: cause}, NoOp())
	require.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, cause)
}

func TestKindStrings(t *testing.T) {
	assert.Equal(t, "get_command_logs", ActionGetCommandLogs.String())
	assert.Equal(t, "action(9)", ActionKind(9).String())
	assert.Equal(t, "action_failed", ResponseActionFailed.String())
	assert.Equal(t, "response(9)", ResponseKind(9).String())
}
