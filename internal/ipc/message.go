package ipc

import (
	"encoding/json"
	"fmt"
)

// Response is the generic reply shape: a command echo plus its data.
type Response struct {
	Cmd   string          `json:"cmd"`
	Data  json.RawMessage `json:"data,omitempty"`
	Evt   string          `json:"evt,omitempty"`
	Nonce string          `json:"nonce,omitempty"`
}

// Error is the shape the peer uses to reject a request.
type Error struct {
	Code    uint32 `json:"code"`
	Message string `json:"message"`
}

// Message is a decoded incoming payload. Exactly one of Response and Error is
// set.
type Message struct {
	Response *Response
	Error    *Error
}

// IsError reports whether the peer returned an error payload.
func (m Message) IsError() bool { return m.Error != nil }

// Err converts an error payload into a *RemoteError, or returns nil.
func (m Message) Err() error {
	if m.Error == nil {
		return nil
	}
	return &RemoteError{Code: m.Error.Code, Message: m.Error.Message}
}

func (m Message) String() string {
	switch {
	case m.Error != nil:
		return fmt.Sprintf("error code=%d message=%q", m.Error.Code, m.Error.Message)
	case m.Response != nil:
		s := "cmd=" + m.Response.Cmd
		if m.Response.Evt != "" {
			s += " evt=" + m.Response.Evt
		}
		if m.Response.Nonce != "" {
			s += " nonce=" + m.Response.Nonce
		}
		return s
	default:
		return "empty"
	}
}

// DecodeMessage picks the payload shape by key: a top-level "code" marks an
// Error, otherwise "cmd" is required for a Response.
func DecodeMessage(body []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Message{}, &ProtocolError{Reason: "malformed message", Err: err}
	}
	if fields == nil {
		return Message{}, &ProtocolError{Reason: "malformed message: not an object"}
	}
	if _, ok := fields["code"]; ok {
		var e Error
		if err := json.Unmarshal(body, &e); err != nil {
			return Message{}, &ProtocolError{Reason: "malformed error message", Err: err}
		}
		return Message{Error: &e}, nil
	}
	if _, ok := fields["cmd"]; ok {
		var r Response
		if err := json.Unmarshal(body, &r); err != nil {
			return Message{}, &ProtocolError{Reason: "malformed response message", Err: err}
		}
		return Message{Response: &r}, nil
	}
	return Message{}, &ProtocolError{Reason: "malformed message: neither cmd nor code present"}
}
