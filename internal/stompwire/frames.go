// Package stompwire encodes STOMP 1.2 frames carried one per WebSocket text message.
package stompwire

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
)

// Version is the only protocol version spoken on either side.
const Version = "1.2"

// ErrEmptyFrame is returned when a message holds no frame, e.g. a heart-beat.
var ErrEmptyFrame = errors.New("stomp: empty frame")

var heartbeat = []byte{'\n'}

// Heartbeat returns the payload sent as a keep-alive.
func Heartbeat() []byte {
	return heartbeat
}

// IsHeartbeat reports whether data consists only of EOLs.
func IsHeartbeat(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	for _, b := range data {
		if b != '\n' && b != '\r' {
			return false
		}
	}
	return true
}

// Encode serialises f including the trailing NUL octet.
func Encode(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Command, err)
	}
	return buf.Bytes(), nil
}

// MustEncode is Encode for frames built from constant headers.
func MustEncode(f *frame.Frame) []byte {
	data, err := Encode(f)
	if err != nil {
		panic(err)
	}
	return data
}

// Decode parses a single frame out of a WebSocket message.
func Decode(data []byte) (*frame.Frame, error) {
	f, err := frame.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if f == nil {
		return nil, ErrEmptyFrame
	}
	return f, nil
}

// FormatHeartbeat renders the heart-beat header value for the given intervals.
func FormatHeartbeat(outgoing, incoming time.Duration) string {
	return strconv.FormatInt(outgoing.Milliseconds(), 10) + "," + strconv.FormatInt(incoming.Milliseconds(), 10)
}

// ParseHeartbeat parses a heart-beat header value. An empty value means no heart-beats.
func ParseHeartbeat(value string) (time.Duration, time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return 0, 0, nil
	}
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid heart-beat %q", value)
	}
	x, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil || x < 0 {
		return 0, 0, fmt.Errorf("invalid heart-beat %q", value)
	}
	y, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil || y < 0 {
		return 0, 0, fmt.Errorf("invalid heart-beat %q", value)
	}
	return time.Duration(x) * time.Millisecond, time.Duration(y) * time.Millisecond, nil
}

// NegotiateHeartbeat computes the effective intervals for the local side given its own
// settings and the peer's heart-beat header. send is how often the local side must emit a
// heart-beat and expect is how often it should hear from the peer; zero disables either.
func NegotiateHeartbeat(localOut, localIn time.Duration, remote string) (send, expect time.Duration) {
	remoteOut, remoteIn, err := ParseHeartbeat(remote)
	if err != nil {
		return 0, 0
	}
	if localOut > 0 && remoteIn > 0 {
		send = max(localOut, remoteIn)
	}
	if localIn > 0 && remoteOut > 0 {
		expect = max(localIn, remoteOut)
	}
	return send, expect
}
