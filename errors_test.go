package nostrmux

import (
	"strings"
	"testing"
	"time"

	"github.com/yanun0323/errors"
)

func TestSDKError_Message(t *testing.T) {
	cause := errors.New("boom")
	e := SDKError{
		Kind:      ErrConnectionFailure,
		URL:       "wss://relay.example.com",
		Cause:     cause,
		Timestamp: time.Now(),
	}

	msg := e.Error()
	if !strings.Contains(msg, "ErrConnectionFailure") || !strings.Contains(msg, "boom") ||
		!strings.Contains(msg, "wss://relay.example.com") {
		t.Errorf("error message %q missing kind, cause, or relay", msg)
	}
	if e.Unwrap() != cause {
		t.Error("Unwrap() should return the cause")
	}
}

func TestSDKError_NoCause(t *testing.T) {
	e := SDKError{Kind: ErrSlowConsumer, SubID: "sub:0"}
	if msg := e.Error(); !strings.Contains(msg, "ErrSlowConsumer") || !strings.Contains(msg, "sub:0") {
		t.Errorf("error message %q missing kind or sub id", msg)
	}
}

func TestErrorKind_UnknownString(t *testing.T) {
	if got := ErrorKind(99).String(); got != "ErrorKind(99)" {
		t.Errorf("ErrorKind(99).String() = %q", got)
	}
}

func TestLogErrors_DoesNotPanic(t *testing.T) {
	handler := LogErrors()
	handler(SDKError{Kind: ErrParseFailure, Cause: errors.New("bad frame")})
}
