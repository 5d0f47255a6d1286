package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"tarabot/internal/core/port"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// ActionReceiver performs the actions a client requests. Perform never fails
// outright; failures are reported as ActionFailed responses.
type ActionReceiver interface {
	Perform(ctx context.Context, action ActionMessage) ResponseMessage
}

// Server answers actions on a Unix socket, one connection at a time.
type Server struct {
	socketPath string
	receiver   ActionReceiver
	instances  port.InstanceCounter

	mu       sync.Mutex
	listener net.Listener
}

func NewServer(socketPath string, receiver ActionReceiver, instances port.InstanceCounter) *Server {
	return &Server{
		socketPath: socketPath,
		receiver:   receiver,
		instances:  instances,
	}
}

// Start binds the socket and serves connections until ctx is done. It only
// returns early on a fatal bind error.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	return s.Serve(ctx)
}

// Listen binds the socket. A socket left behind by a crashed instance is
// removed and bound again; a socket held by a live instance is ErrBindConflict.
func (s *Server) Listen() error {
	if err := ensureSocketDir(filepath.Dir(s.socketPath)); err != nil {
		return err
	}

	log.Info().Str("socket", s.socketPath).Msg("binding ipc socket")

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil && errors.Is(err, syscall.EADDRINUSE) {
		ln, err = s.rebind()
	}
	if errors.Is(err, ErrBindConflict) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: bind %s: %w", ErrIO, s.socketPath, err)
	}

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("%w: chmod socket: %w", ErrIO, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	return nil
}

func (s *Server) rebind() (net.Listener, error) {
	count, err := s.instances.CountRunningInstances()
	if err != nil {
		return nil, fmt.Errorf("count running instances: %w", err)
	}

	if count > 1 {
		log.Error().Int("instances", count).Msg("only one instance can be running at once")
		return nil, ErrBindConflict
	}

	log.Warn().Str("socket", s.socketPath).Msg("removing stale socket")
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	return net.Listen("unix", s.socketPath)
}

// Serve accepts connections until ctx is done. Failures of a single connection
// are logged and never stop the server.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	if ln == nil {
		return fmt.Errorf("%w: server is not listening", ErrIO)
	}

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			delay = acceptBackoff(delay)
			log.Error().Err(err).Dur("retryIn", delay).Msg("inbound connection failed")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		delay = 0

		if err := s.handleConn(ctx, conn); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("ipc connection ended with error")
		}
	}
}

// Close stops accepting connections and removes the socket.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()

	if ln == nil {
		return nil
	}

	return ln.Close()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	log.Debug().Msg("ipc client connected")
	r := bufio.NewReader(conn)

	for {
		action, err := ReadMessage[ActionMessage](r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Debug().Msg("ipc client disconnected")
				return nil
			}
			return err
		}

		log.Debug().Stringer("action", action.Kind).Msg("server received action")

		if action.Kind == ActionEndTransmission {
			return WriteMessage(conn, TransmissionEnded())
		}

		if err := WriteMessage(conn, s.receiver.Perform(ctx, action)); err != nil {
			return err
		}
	}
}

// acceptBackoff doubles the previous delay between minAcceptDelay and maxAcceptDelay.
func acceptBackoff(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptDelay
	}

	return min(prev*2, maxAcceptDelay)
}

// ensureSocketDir creates the socket directory with 0700 if it is missing.
func ensureSocketDir(dir string) error {
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("%w: create socket directory: %w", ErrIO, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: stat socket directory: %w", ErrIO, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: socket directory %s is not a directory", ErrIO, dir)
	}

	return nil
}
