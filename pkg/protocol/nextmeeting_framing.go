// Package protocol implements the framed request/response protocol spoken
// over the daemon's Unix socket: a 4-byte big-endian length prefix followed
// by a JSON envelope.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// MaxMessageSize caps a single frame's payload.
const MaxMessageSize = 1 << 20 // 1 MiB

// ErrEmptyMessage is returned for a frame declaring a zero-length payload.
var ErrEmptyMessage = errors.New("protocol: empty message")

// MessageTooLargeError is returned when a declared or actual payload exceeds
// MaxMessageSize.
type MessageTooLargeError struct {
	Size uint32
	Max  uint32
}

func (e *MessageTooLargeError) Error() string {
	return fmt.Sprintf("protocol: message size %d exceeds maximum %d", e.Size, e.Max)
}

// IncompleteMessageError is returned when the stream ends before a full frame
// was read.
type IncompleteMessageError struct {
	Expected int
	Received int
}

func (e *IncompleteMessageError) Error() string {
	return fmt.Sprintf("protocol: incomplete message: expected %d bytes, received %d", e.Expected, e.Received)
}

// ParseError is returned when a complete frame carries invalid JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("protocol: parse error: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// EncodeMessage frames a message: length prefix plus JSON payload.
func EncodeMessage(message any) ([]byte, error) {
	payload, err := json.Marshal(message)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	if len(payload) > MaxMessageSize {
		return nil, &MessageTooLargeError{Size: uint32(len(payload)), Max: MaxMessageSize}
	}

	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)
	return buf, nil
}

// DecodeMessage parses a complete framed message from data into v.
func DecodeMessage(data []byte, v any) error {
	if len(data) < 4 {
		return &IncompleteMessageError{Expected: 4, Received: len(data)}
	}
	length := binary.BigEndian.Uint32(data[:4])
	if length > MaxMessageSize {
		return &MessageTooLargeError{Size: length, Max: MaxMessageSize}
	}
	if length == 0 {
		return ErrEmptyMessage
	}
	if len(data) < int(4+length) {
		return &IncompleteMessageError{Expected: int(4 + length), Received: len(data)}
	}
	if err := json.Unmarshal(data[4:4+length], v); err != nil {
		return &ParseError{Err: err}
	}
	return nil
}

// FrameReader reads framed messages from a byte stream.
type FrameReader struct {
	r io.Reader
}

// NewFrameReader wraps r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// ReadMessage reads one framed message into v. A clean EOF before any bytes
// yields (false, nil): the peer closed between messages, not an error.
func (fr *FrameReader) ReadMessage(v any) (bool, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(fr.r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return false, &IncompleteMessageError{Expected: 4}
		}
		return false, err
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > MaxMessageSize {
		return false, &MessageTooLargeError{Size: length, Max: MaxMessageSize}
	}
	if length == 0 {
		return false, ErrEmptyMessage
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, &IncompleteMessageError{Expected: int(length)}
		}
		return false, err
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return false, &ParseError{Err: err}
	}
	return true, nil
}

// FrameWriter writes framed messages to a byte stream.
type FrameWriter struct {
	w io.Writer
}

// NewFrameWriter wraps w.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteMessage frames and writes one message.
func (fw *FrameWriter) WriteMessage(message any) error {
	data, err := EncodeMessage(message)
	if err != nil {
		return err
	}
	_, err = fw.w.Write(data)
	return err
}
