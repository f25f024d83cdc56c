// Package apperr defines the error taxonomy surfaced to the user by the practice client.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindDeviceAccess   Kind = "device_access"
	KindAuthentication Kind = "authentication"
	KindStorageUpload  Kind = "storage_upload"
	KindServer         Kind = "server"
	KindAnalysis       Kind = "analysis"
	KindEmptyQueue     Kind = "empty_queue"
	KindQuestionLoad   Kind = "question_load"
)

// Default user-facing messages per kind.
const (
	MsgDeviceAccess   = "カメラ/マイクへのアクセスに失敗しました。権限を確認してください。"
	MsgAuthentication = "認証に失敗しました。再度ログインしてください。"
	MsgQuestionLoad   = "質問の読み込みに失敗しました。後でもう一度お試しください。"
	MsgEmptyQueue     = "質問が見つかりませんでした。"
	MsgStorageUpload  = "ストレージへのアップロードに失敗しました"
)

// Error is the single tagged error type handed to UI code.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	// Status is the HTTP status that produced the error, zero when none.
	Status int
	// Transient marks failures worth retrying (network errors, 5xx, 408, 429).
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// UserMessage returns the text shown to the user.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

// New builds an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap builds an error of the given kind around err.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// DeviceAccess wraps a camera/microphone acquisition failure.
func DeviceAccess(op string, err error) *Error {
	return &Error{Kind: KindDeviceAccess, Op: op, Message: MsgDeviceAccess, Err: err}
}

// Authentication reports an invalid or missing session.
func Authentication(op string) *Error {
	return &Error{Kind: KindAuthentication, Op: op, Message: MsgAuthentication, Status: http.StatusUnauthorized}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether an automatic retry may help. Device and authentication
// failures are never retryable.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindServer, KindStorageUpload:
		return e.Transient
	default:
		return false
	}
}

// Reclassify keeps authentication errors as they are and turns everything else into kind.
func Reclassify(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if IsKind(err, KindAuthentication) {
		return err
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Kind: kind, Op: op, Message: e.Message, Status: e.Status, Err: err}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// TransientStatus reports whether an HTTP status is worth retrying.
func TransientStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError
}
