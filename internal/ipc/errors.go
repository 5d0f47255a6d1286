package ipc

import "errors"

var (
	// ErrIO marks transport failures: socket connect, read or write.
	ErrIO = errors.New("ipc: io")
	// ErrSerialization marks payloads that could not be encoded or decoded.
	ErrSerialization = errors.New("ipc: (de)serialization")
	// ErrBindConflict is returned when another live instance owns the socket.
	ErrBindConflict = errors.New("ipc: another instance is already running")
	// ErrUnexpectedResponse is returned when the server answers out of protocol.
	ErrUnexpectedResponse = errors.New("ipc: unexpected response")
	// ErrClientClosed is returned by calls on a closed client.
	ErrClientClosed = errors.New("ipc: client closed")
)
