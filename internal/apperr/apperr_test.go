package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadMessageShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"plain text", "boom", "boom"},
		{"json string", `"invalid filename"`, "invalid filename"},
		{"object message", `{"message":"bad request"}`, "bad request"},
		{"envelope", `{"success":false,"error":"video not found"}`, "video not found"},
		{"nested object", `{"error":{"message":"quota exceeded"}}`, "quota exceeded"},
		{"list of strings", `["email required","password too short"]`, "email required; password too short"},
		{"list of objects", `{"errors":[{"msg":"a"},{"msg":"b"}]}`, "a; b"},
		{"empty", "", ""},
		{"null", "null", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PayloadMessage([]byte(tc.body)))
		})
	}
}

func TestFromResponseUnauthorized(t *testing.T) {
	err := FromResponse("upload ticket", http.StatusUnauthorized, []byte(`{"error":"expired"}`))
	assert.Equal(t, KindAuthentication, err.Kind)
	assert.Equal(t, MsgAuthentication, err.UserMessage())
	assert.False(t, Retryable(err))
}

func TestFromResponseServerTransient(t *testing.T) {
	err := FromResponse("poll", http.StatusBadGateway, nil)
	assert.Equal(t, KindServer, err.Kind)
	assert.True(t, err.Transient)
	assert.True(t, Retryable(err))
	assert.Contains(t, err.UserMessage(), "Bad Gateway")

	err = FromResponse("poll", http.StatusBadRequest, []byte(`{"error":"bad"}`))
	assert.False(t, Retryable(err))
}

func TestReclassifyKeepsAuthentication(t *testing.T) {
	auth := Authentication("facial")
	require.Same(t, auth, Reclassify(KindAnalysis, "facial", auth))

	server := FromResponse("facial", http.StatusBadGateway, []byte(`{"error":"face service down"}`))
	got := Reclassify(KindAnalysis, "facial", server)
	assert.Equal(t, KindAnalysis, KindOf(got))
	assert.True(t, errors.Is(got, server))

	plain := Reclassify(KindAnalysis, "facial", errors.New("eof"))
	assert.True(t, IsKind(plain, KindAnalysis))
}

func TestErrorsIsByKind(t *testing.T) {
	err := fmt.Errorf("turn: %w", DeviceAccess("capture start", errors.New("permission denied")))
	assert.True(t, errors.Is(err, &Error{Kind: KindDeviceAccess}))
	assert.False(t, errors.Is(err, &Error{Kind: KindServer}))

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, MsgDeviceAccess, e.UserMessage())
}

func TestPayloadMessageTruncatesOnRuneBoundary(t *testing.T) {
	body := `{"error":"x` + strings.Repeat("あ", 150) + `"}`
	msg := PayloadMessage([]byte(body))
	assert.True(t, utf8.ValidString(msg))
	assert.Equal(t, 301, utf8.RuneCountInString(msg))
	assert.True(t, strings.HasSuffix(msg, "あ…"))

	short := PayloadMessage([]byte(`{"error":"` + strings.Repeat("い", 300) + `"}`))
	assert.Equal(t, strings.Repeat("い", 300), short)
}
