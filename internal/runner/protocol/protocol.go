// Package protocol defines the JSON events exchanged over a session connection.
package protocol

import (
	"bytes"
	"encoding/json"
	"strings"

	"liverun/internal/runner/result"
	appErr "liverun/pkg/errors"
)

// Type tags every frame.
type Type string

const (
	TypeStart  Type = "start"
	TypeStdin  Type = "stdin"
	TypeEOF    Type = "eof"
	TypeStop   Type = "stop"
	TypeOutput Type = "output"
	TypeExit   Type = "exit"
)

// Output streams.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
	// StreamSystem carries diagnostics produced by the service itself.
	StreamSystem = "system"
)

// Inbound is a decoded client event.
type Inbound struct {
	Type     Type
	Language string
	Source   string
	Data     string
}

type inboundFrame struct {
	Type     Type    `json:"type"`
	Language string  `json:"language"`
	Lang     string  `json:"lang"`
	Source   *string `json:"source"`
	Code     *string `json:"code"`
	Data     string  `json:"data"`
}

// Decode parses one text frame. Older clients send lang/code instead of
// language/source; both spellings are accepted.
func Decode(frame []byte) (Inbound, error) {
	var raw inboundFrame
	dec := json.NewDecoder(bytes.NewReader(frame))
	if err := dec.Decode(&raw); err != nil {
		return Inbound{}, appErr.Wrapf(err, appErr.ProtocolViolation, "invalid frame: %v", err)
	}
	msg := Inbound{Type: Type(strings.ToLower(string(raw.Type)))}
	switch msg.Type {
	case TypeStart:
		msg.Language = raw.Language
		if msg.Language == "" {
			msg.Language = raw.Lang
		}
		switch {
		case raw.Source != nil:
			msg.Source = *raw.Source
		case raw.Code != nil:
			msg.Source = *raw.Code
		}
	case TypeStdin:
		msg.Data = raw.Data
	case TypeEOF, TypeStop:
	case "":
		return Inbound{}, appErr.Newf(appErr.ProtocolViolation, "frame has no type")
	default:
		return Inbound{}, appErr.Newf(appErr.ProtocolViolation, "unknown frame type %q", raw.Type).
			WithDetail("type", string(raw.Type))
	}
	return msg, nil
}

// Outbound is an event sent to the client.
type Outbound struct {
	Type   Type   `json:"type"`
	Data   string `json:"data,omitempty"`
	Stream string `json:"stream,omitempty"`
	Code   *int   `json:"code,omitempty"`
	Signal string `json:"signal,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Output builds an output event.
func Output(stream string, data []byte) Outbound {
	return Outbound{Type: TypeOutput, Data: string(data), Stream: stream}
}

// Diagnostic builds a service message on the system stream.
func Diagnostic(message string) Outbound {
	if !strings.HasSuffix(message, "\n") {
		message += "\n"
	}
	return Outbound{Type: TypeOutput, Data: message, Stream: StreamSystem}
}

// Exit builds the terminal event from a process status.
func Exit(status result.ExitStatus) Outbound {
	code := status.Code
	return Outbound{
		Type:   TypeExit,
		Code:   &code,
		Signal: status.Signal,
		Reason: string(status.Reason),
	}
}

// IsExit reports whether the event is terminal.
func (o Outbound) IsExit() bool {
	return o.Type == TypeExit
}

// ExitCode returns the exit code, or false for non-exit events.
func (o Outbound) ExitCode() (int, bool) {
	if o.Type != TypeExit || o.Code == nil {
		return 0, false
	}
	return *o.Code, true
}

// Encode renders an event as a text frame.
func Encode(o Outbound) ([]byte, error) {
	return json.Marshal(o)
}

// DecodeOutbound parses a server event; used by clients.
func DecodeOutbound(frame []byte) (Outbound, error) {
	var o Outbound
	if err := json.Unmarshal(frame, &o); err != nil {
		return Outbound{}, appErr.Wrapf(err, appErr.ProtocolViolation, "invalid server frame: %v", err)
	}
	return o, nil
}

// Start, Stdin, EOF and Stop build client frames.
func Start(language, source string) ([]byte, error) {
	return json.Marshal(map[string]string{"type": string(TypeStart), "language": language, "source": source})
}

func Stdin(data string) ([]byte, error) {
	return json.Marshal(map[string]string{"type": string(TypeStdin), "data": data})
}

func EOF() []byte {
	return []byte(`{"type":"eof"}`)
}

func Stop() []byte {
	return []byte(`{"type":"stop"}`)
}
