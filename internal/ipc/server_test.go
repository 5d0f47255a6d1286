package ipc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"tarabot/internal/core/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	count int
	err   error
}

func (c fakeCounter) CountRunningInstances() (int, error) {
	return c.count, c.err
}

type recordingReceiver struct {
	performed atomic.Int32
	block     bool
}

func (r *recordingReceiver) Perform(ctx context.Context, action ActionMessage) ResponseMessage {
	r.performed.Add(1)

	if r.block {
		<-ctx.Done()
		return ActionFailedFromError(ctx.Err())
	}

	switch action.Kind {
	case ActionNoOp:
		return ActionCompleted()
	case ActionGetCommandLogs:
		return CommandLogs([]domain.LoggedCommandEvent{{Name: "chat", Time: action.LowerCutoff.Add(time.Second)}})
	default:
		return ActionFailed("unsupported action")
	}
}

func socketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "t.sock")
}

// startServer serves on path until the test ends.
func startServer(t *testing.T, path string, receiver ActionReceiver, counter fakeCounter) {
	t.Helper()

	srv := NewServer(path, receiver, counter)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
}

func dial(t *testing.T, path string) *Client {
	t.Helper()

	client, err := Dial(t.Context(), path)
	require.NoError(t, err)

	return client
}

func TestServer_NoOpTriplets(t *testing.T) {
	path := socketPath(t)
	receiver := &recordingReceiver{}
	startServer(t, path, receiver, fakeCounter{count: 1})

	client := dial(t, path)
	for range 100 {
		responses, err := client.SendActions(t.Context(), []ActionMessage{NoOp(), NoOp(), NoOp()})
		require.NoError(t, err)
		require.Len(t, responses, 3)
		for _, resp := range responses {
			assert.Equal(t, ResponseActionCompleted, resp.Kind)
		}
	}
	require.NoError(t, client.Close())

	assert.Equal(t, int32(300), receiver.performed.Load())
}

func TestServer_SequentialConnections(t *testing.T) {
	path := socketPath(t)
	startServer(t, path, &recordingReceiver{}, fakeCounter{count: 1})

	for range 10 {
		client := dial(t, path)
		resp, err := client.SendAction(t.Context(), NoOp())
		require.NoError(t, err)
		assert.Equal(t, ResponseActionCompleted, resp.Kind)
		require.NoError(t, client.Close())
	}
}

func TestServer_CommandLogsRoundTrip(t *testing.T) {
	path := socketPath(t)
	startServer(t, path, &recordingReceiver{}, fakeCounter{count: 1})

	client := dial(t, path)
	defer client.Close()

	lower := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	resp, err := client.SendAction(t.Context(), GetCommandLogs(lower, nil))
	require.NoError(t, err)

	assert.Equal(t, ResponseCommandLogs, resp.Kind)
	require.Len(t, resp.CommandLogs, 1)
	assert.Equal(t, "chat", resp.CommandLogs[0].Name)
	assert.True(t, lower.Add(time.Second).Equal(resp.CommandLogs[0].Time))
}

func TestServer_EndTransmissionIsTerminal(t *testing.T) {
	path := socketPath(t)
	receiver := &recordingReceiver{}
	startServer(t, path, receiver, fakeCounter{count: 1})

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	// both frames in one write so the server reads them together
	var batch bytes.Buffer
	require.NoError(t, WriteMessage(&batch, EndTransmission()))
	require.NoError(t, WriteMessage(&batch, NoOp()))
	_, err = conn.Write(batch.Bytes())
	require.NoError(t, err)

	resp, err := ReadMessage[ResponseMessage](conn)
	require.NoError(t, err)
	assert.Equal(t, ResponseTransmissionEnded, resp.Kind)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = ReadMessage[ResponseMessage](conn)
	require.ErrorIs(t, err, io.EOF, "no response after the end of transmission")

	assert.Equal(t, int32(0), receiver.performed.Load())
}

func TestServer_BadConnectionDoesNotStopServer(t *testing.T) {
	path := socketPath(t)
	startServer(t, path, &recordingReceiver{}, fakeCounter{count: 1})

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	require.NoError(t, WriteFrame(conn, []byte{0xff, 0xff, 0xff}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = ReadMessage[ResponseMessage](conn)
	require.Error(t, err, "server drops the connection")
	conn.Close()

	client := dial(t, path)
	defer client.Close()

	resp, err := client.SendAction(t.Context(), NoOp())
	require.NoError(t, err)
	assert.Equal(t, ResponseActionCompleted, resp.Kind)
}

func TestServer_StaleSocketIsReplaced(t *testing.T) {
	path := socketPath(t)

	stale, err := net.Listen("unix", path)
	require.NoError(t, err)
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, stale.Close())

	_, err = os.Stat(path)
	require.NoError(t, err, "stale socket file must remain")

	startServer(t, path, &recordingReceiver{}, fakeCounter{count: 1})

	client := dial(t, path)
	defer client.Close()

	resp, err := client.SendAction(t.Context(), NoOp())
	require.NoError(t, err)
	assert.Equal(t, ResponseActionCompleted, resp.Kind)
}

func TestServer_BindConflict(t *testing.T) {
	path := socketPath(t)
	startServer(t, path, &recordingReceiver{}, fakeCounter{count: 1})

	tests := []struct {
		name    string
		counter fakeCounter
		wantErr error
	}{
		{
			name:    "second live instance",
			counter: fakeCounter{count: 2},
			wantErr: ErrBindConflict,
		},
		{
			name:    "instance count unavailable",
			counter: fakeCounter{err: errors.New("proc unavailable")},
			wantErr: ErrIO,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewServer(path, &recordingReceiver{}, tt.counter).Listen()
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	// the running server keeps its socket
	client := dial(t, path)
	defer client.Close()

	resp, err := client.SendAction(t.Context(), NoOp())
	require.NoError(t, err)
	assert.Equal(t, ResponseActionCompleted, resp.Kind)
}

func TestServer_SocketPermissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	path := filepath.Join(dir, "t.sock")

	srv := NewServer(path, &recordingReceiver{}, fakeCounter{count: 1})
	require.NoError(t, srv.Listen())
	defer srv.Close()

	dirInfo, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())

	sockInfo, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), sockInfo.Mode().Perm())
}

func TestServer_ServeWithoutListen(t *testing.T) {
	srv := NewServer(socketPath(t), &recordingReceiver{}, fakeCounter{count: 1})

	err := srv.Serve(t.Context())
	require.ErrorIs(t, err, ErrIO)
}

func TestServer_StopsOnCancel(t *testing.T) {
	path := socketPath(t)
	srv := NewServer(path, &recordingReceiver{}, fakeCounter{count: 1})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- srv.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	// an idle connection must not keep the server alive
	client := dial(t, path)
	_, err := client.SendAction(t.Context(), NoOp())
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after cancellation")
	}

	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestClient_ConcurrentSendAction(t *testing.T) {
	path := socketPath(t)
	receiver := &recordingReceiver{}
	startServer(t, path, receiver, fakeCounter{count: 1})

	client := dial(t, path)
	defer client.Close()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				resp, err := client.SendAction(t.Context(), NoOp())
				assert.NoError(t, err)
				assert.Equal(t, ResponseActionCompleted, resp.Kind)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(400), receiver.performed.Load())
}

func TestClient_Close(t *testing.T) {
	path := socketPath(t)
	startServer(t, path, &recordingReceiver{}, fakeCounter{count: 1})

	client := dial(t, path)
	require.NoError(t, client.Close())

	require.ErrorIs(t, client.Close(), ErrClientClosed)

	_, err := client.SendAction(t.Context(), NoOp())
	require.ErrorIs(t, err, ErrClientClosed)

	_, err = client.SendActions(t.Context(), []ActionMessage{NoOp()})
	require.ErrorIs(t, err, ErrClientClosed)
}

func TestClient_DeadlineBoundsExchange(t *testing.T) {
	path := socketPath(t)
	startServer(t, path, &recordingReceiver{block: true}, fakeCounter{count: 1})

	client := dial(t, path)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err := client.SendAction(ctx, NoOp())
	require.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

// slowReceiver answers GetCommandLogs only after delay.
type slowReceiver struct {
	delay time.Duration
}

func (r slowReceiver) Perform(_ context.Context, action ActionMessage) ResponseMessage {
	if action.Kind == ActionGetCommandLogs {
		time.Sleep(r.delay)
		return CommandLogs([]domain.LoggedCommandEvent{{Name: "late"}})
	}

	return ActionCompleted()
}

func TestClient_FailedExchangeClosesClient(t *testing.T) {
	tests := []struct {
		name string
		send func(ctx context.Context, c *Client) error
	}{
		{
			name: "single action",
			send: func(ctx context.Context, c *Client) error {
				_, err := c.SendAction(ctx, GetCommandLogs(time.Time{}, nil))
				return err
			},
		},
		{
			name: "batch",
			send: func(ctx context.Context, c *Client) error {
				_, err := c.SendActions(ctx, []ActionMessage{NoOp(), GetCommandLogs(time.Time{}, nil), NoOp()})
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := socketPath(t)
			startServer(t, path, slowReceiver{delay: 150 * time.Millisecond}, fakeCounter{count: 1})

			client := dial(t, path)

			ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
			defer cancel()
			require.ErrorIs(t, tt.send(ctx, client), ErrIO)

			// the late command logs must never be handed to a later call
			_, err := client.SendAction(t.Context(), NoOp())
			require.ErrorIs(t, err, ErrClientClosed)
			_, err = client.SendActions(t.Context(), []ActionMessage{NoOp()})
			require.ErrorIs(t, err, ErrClientClosed)
			require.ErrorIs(t, client.Close(), ErrClientClosed)

			fresh := dial(t, path)
			resp, err := fresh.SendAction(t.Context(), NoOp())
			require.NoError(t, err)
			assert.Equal(t, ResponseActionCompleted, resp.Kind)
			require.NoError(t, fresh.Close())
		})
	}
}

// failingListener fails Accept a fixed number of times, then reports itself closed.
type failingListener struct {
	failures atomic.Int32
	calls    atomic.Int32
}

func (l *failingListener) Accept() (net.Conn, error) {
	if l.calls.Add(1) <= l.failures.Load() {
		return nil, errors.New("accept: too many open files")
	}
	return nil, net.ErrClosed
}

func (l *failingListener) Close() error   { return nil }
func (l *failingListener) Addr() net.Addr { return &net.UnixAddr{Name: "fake", Net: "unix"} }

func TestServer_AcceptErrorsBackOff(t *testing.T) {
	ln := &failingListener{}
	ln.failures.Store(3)

	srv := NewServer("unused", &recordingReceiver{}, fakeCounter{count: 1})
	srv.listener = ln

	start := time.Now()
	require.NoError(t, srv.Serve(t.Context()))

	assert.Equal(t, int32(4), ln.calls.Load())
	assert.GreaterOrEqual(t, time.Since(start), minAcceptDelay*(1+2+4))
}

func TestServer_AcceptBackoffStopsOnCancel(t *testing.T) {
	ln := &failingListener{}
	ln.failures.Store(1 << 30)

	srv := NewServer("unused", &recordingReceiver{}, fakeCounter{count: 1})
	srv.listener = ln

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, srv.Serve(ctx), context.DeadlineExceeded)
	// without a delay between retries this would be in the millions
	assert.Less(t, ln.calls.Load(), int32(20))
}

func TestAcceptBackoff(t *testing.T) {
	tests := []struct {
		prev time.Duration
		want time.Duration
	}{
		{prev: 0, want: minAcceptDelay},
		{prev: minAcceptDelay, want: 2 * minAcceptDelay},
		{prev: 800 * time.Millisecond, want: maxAcceptDelay},
		{prev: maxAcceptDelay, want: maxAcceptDelay},
	}

	for _, tt := range tests {
		t.Run(tt.prev.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, acceptBackoff(tt.prev))
		})
	}
}

func TestDial_NoServer(t *testing.T) {
	_, err := Dial(t.Context(), socketPath(t))
	require.ErrorIs(t, err, ErrIO)
}

func TestDefaultSocketPath(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal(t, "/run/user/1000/tarabot/tarabot.sock", DefaultSocketPath())

	t.Setenv("XDG_RUNTIME_DIR", "")
	assert.Equal(t, filepath.Join(os.TempDir(), "tarabot", "tarabot.sock"), DefaultSocketPath())
}
