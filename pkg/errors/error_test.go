package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "liverun/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{InvalidParams, "Invalid parameters"},
		{LanguageNotSupported, "Programming language not supported"},
		{WorkspaceIOError, "Failed to prepare workspace"},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{LanguageNotSupported, 400},
		{Unauthorized, 401},
		{Forbidden, 403},
		{NotFound, 404},
		{SessionBusy, 409},
		{TooManyRequests, 429},
		{InternalServerError, 500},
		{WorkspaceIOError, 500},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(SessionClosed, "session %s closed", "abc")

	want := "session abc closed"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
	if err.Stack == "" {
		t.Error("expected stack to be captured")
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("permission denied")
	wrappedErr := Wrap(originalErr, WorkspaceIOError)

	if wrappedErr.Code != WorkspaceIOError {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, WorkspaceIOError)
	}
	if wrappedErr.Unwrap() != originalErr {
		t.Error("Unwrap() should return original error")
	}
	if Wrap(nil, WorkspaceIOError) != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{
			name: "nil error",
			err:  nil,
			want: Success,
		},
		{
			name: "custom error",
			err:  New(SessionBusy),
			want: SessionBusy,
		},
		{
			name: "wrapped custom error",
			err:  fmt.Errorf("deliver: %w", New(SessionClosed)),
			want: SessionClosed,
		},
		{
			name: "standard error",
			err:  errors.New("standard error"),
			want: InternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := New(SessionBusy)

	if !Is(err, SessionBusy) {
		t.Error("Is() should return true for matching code")
	}
	if Is(err, WorkspaceIOError) {
		t.Error("Is() should return false for non-matching code")
	}
	if Is(nil, SessionBusy) {
		t.Error("Is() should return false for nil error")
	}
}

func TestSessionErrorConstructors(t *testing.T) {
	t.Run("UnsupportedLanguage", func(t *testing.T) {
		err := UnsupportedLanguage("cobol")
		if err.Code != LanguageNotSupported {
			t.Fatalf("unexpected code: %v", err.Code)
		}
		if err.Error() != "Unsupported language: cobol" {
			t.Fatalf("unexpected message: %q", err.Error())
		}
		if err.Details["language"] != "cobol" {
			t.Fatal("language detail not set")
		}
		if got := UnsupportedLanguage("").Error(); got != "Unsupported language: undefined" {
			t.Fatalf("missing language message = %q", got)
		}
	})

	t.Run("Busy", func(t *testing.T) {
		err := Busy("Running")
		if err.Code != SessionBusy {
			t.Fatalf("unexpected code: %v", err.Code)
		}
		if err.Details["state"] != "Running" {
			t.Fatal("state detail not set")
		}
	})

	t.Run("WorkspaceFailure", func(t *testing.T) {
		cause := errors.New("disk full")
		err := WorkspaceFailure(cause, "write source")
		if !Is(err, WorkspaceIOError) {
			t.Fatalf("unexpected code: %v", err.Code)
		}
		if !errors.Is(err, cause) {
			t.Fatal("cause should be reachable through Unwrap")
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError("language", "required")
		if err.Code != ValidationFailed {
			t.Error("ValidationError should use ValidationFailed code")
		}
		if err.Details["field"] != "language" {
			t.Error("Field detail not set")
		}
	})
}
