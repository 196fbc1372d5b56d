package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failed request.
type Kind string

const (
	KindNetwork Kind = "network"
	KindHTTP    Kind = "http"
	KindDecode  Kind = "decode"
)

// Error is the single failure shape returned by every Client operation.
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Kind == KindHTTP {
		return fmt.Sprintf("%s: http %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// httpMessage extracts a readable message from an error body. FastAPI-style
// {"detail": "..."} bodies are unwrapped; anything else is trimmed raw text.
func httpMessage(body []byte) string {
	var detail struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &detail); err == nil {
		if s, ok := detail.Detail.(string); ok && s != "" {
			return s
		}
		if detail.Message != "" {
			return detail.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
