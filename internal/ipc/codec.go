// Package ipc implements the control channel between a running bot and local
// tools. Messages travel over a Unix socket as frames:
//
//	[length uint32 little endian][payload: length bytes]
//
// where the payload is a CBOR encoded ActionMessage or ResponseMessage.
package ipc

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/fxamacker/cbor/v2"
)

const lengthPrefixSize = 4

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// WriteFrame writes the length prefix followed by payload. Payloads larger than
// math.MaxUint32 cannot be framed and cause a panic.
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		panic(fmt.Sprintf("ipc: payload of %d bytes exceeds frame limit", len(payload)))
	}

	var prefix [lengthPrefixSize]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(payload)))

	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("%w: write length: %w", ErrIO, err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("%w: write payload: %w", ErrIO, err)
	}

	return nil
}

// ReadFrame reads one length prefixed frame. A stream that ends before the
// frame is complete yields ErrIO wrapping io.EOF or io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, fmt.Errorf("%w: read length: %w", ErrIO, err)
	}

	size := binary.LittleEndian.Uint32(prefix[:])
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("%w: read payload: %w", ErrIO, err)
	}

	return payload, nil
}

// WriteMessage encodes v and writes it as a single frame.
func WriteMessage[T any](w io.Writer, v T) error {
	payload, err := encMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	}

	return WriteFrame(w, payload)
}

// ReadMessage reads a single frame and decodes it into a T.
func ReadMessage[T any](r io.Reader) (T, error) {
	var v T

	payload, err := ReadFrame(r)
	if err != nil {
		return v, err
	}

	if err := decMode.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("%w: %w", ErrSerialization, err)
	}

	return v, nil
}
