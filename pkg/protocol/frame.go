package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/danl5/govotifier/pkg/model"
)

const (
	// Version is the protocol version announced in the greeting
	Version = "2.0"
	// Magic starts every client frame
	Magic uint16 = 0x733a
	// HeaderSize is the size of the magic and length prefix
	HeaderSize = 4

	greetingPrefix = "VOTIFIER "
)

// Greeting returns the line sent to a client right after it connects.
func Greeting(challenge string) []byte {
	return []byte(greetingPrefix + Version + " " + challenge + "\n")
}

// ParseGreeting extracts the challenge from a greeting line.
func ParseGreeting(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0]+" " != greetingPrefix {
		return "", fmt.Errorf("unexpected greeting %q", line)
	}
	if fields[1] != Version {
		return "", fmt.Errorf("unsupported votifier version %s", fields[1])
	}
	return fields[2], nil
}

// ReadHeader reads the frame header and returns the announced body length.
func ReadHeader(r io.Reader) (uint16, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, fmt.Errorf("%w: short header: %s", model.ErrFrame, err.Error())
	}

	magic := binary.BigEndian.Uint16(header[0:2])
	if magic != Magic {
		return 0, fmt.Errorf("%w: invalid magic bytes %x", model.ErrFrame, magic)
	}
	return binary.BigEndian.Uint16(header[2:4]), nil
}

// ReadBody reads up to length bytes. A peer closing early yields the
// truncated body without an error.
func ReadBody(r io.Reader, length uint16) ([]byte, error) {
	body := make([]byte, length)
	n, err := io.ReadFull(r, body)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: read body: %s", model.ErrIO, err.Error())
	}
	return body[:n], nil
}

// WriteFrame writes the header and body of a client frame.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > math.MaxUint16 {
		return fmt.Errorf("%w: body of %d bytes exceeds frame size", model.ErrFrame, len(body))
	}

	frame := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint16(frame[0:2], Magic)
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(body)))
	copy(frame[HeaderSize:], body)

	_, err := w.Write(frame)
	return err
}
