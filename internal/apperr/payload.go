package apperr

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// FromResponse normalizes a non-2xx response into an *Error. The body may carry the error
// as a plain string, an object with a message, a list of strings or objects, or the
// {"success":false,"error":...} envelope used by the backend.
func FromResponse(op string, status int, body []byte) *Error {
	if status == http.StatusUnauthorized {
		return Authentication(op)
	}
	msg := PayloadMessage(body)
	if msg == "" {
		msg = fmt.Sprintf("サーバーエラー: %s", http.StatusText(status))
	}
	return &Error{
		Kind:      KindServer,
		Op:        op,
		Message:   msg,
		Status:    status,
		Transient: TransientStatus(status),
	}
}

// PayloadMessage extracts a human-readable message from an arbitrary error payload.
func PayloadMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return truncate(trimmed)
	}
	return truncate(messageOf(v))
}

func messageOf(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if m := messageOf(item); m != "" {
				parts = append(parts, m)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		for _, key := range []string{"error", "message", "msg", "detail", "errors"} {
			if inner, ok := t[key]; ok {
				if m := messageOf(inner); m != "" {
					return m
				}
			}
		}
		return ""
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// truncate caps s at limit characters, cutting on a rune boundary.
func truncate(s string) string {
	const limit = 300
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	cut, n := 0, 0
	for n < limit {
		_, size := utf8.DecodeRuneInString(s[cut:])
		cut += size
		n++
	}
	return s[:cut] + "…"
}
