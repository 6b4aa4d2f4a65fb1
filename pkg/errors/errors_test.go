package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	cause := stderrors.New("connection refused")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{name: "message and cause", err: Wrap(CodeStorageUnavailable, "failed to load role", cause), want: "failed to load role: connection refused"},
		{name: "message only", err: New(CodeNotFound, "role not found"), want: "role not found"},
		{name: "cause only", err: &Error{Code: CodeUnknown, Err: cause}, want: "connection refused"},
		{name: "code only", err: &Error{Code: CodePermissionDenied}, want: "permission_denied"},
		{name: "nil", err: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Fatalf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsCode(t *testing.T) {
	cause := stderrors.New("boom")
	err := fmt.Errorf("outer: %w", Wrap(CodeCacheUnavailable, "cache read failed", cause))

	if !IsCode(err, CodeCacheUnavailable) {
		t.Fatal("expected wrapped error to carry cache code")
	}
	if IsCode(err, CodeNotFound) {
		t.Fatal("expected code mismatch")
	}
	if !IsInternalCode(err) {
		t.Fatal("expected cache failures to be internal")
	}
	if IsInternalCode(New(CodeInvalidPermission, "bad")) {
		t.Fatal("expected invalid permission to be a caller error")
	}
	if !stderrors.Is(err, cause) {
		t.Fatal("expected cause to be reachable through Unwrap")
	}
	if IsCode(cause, CodeUnknown) {
		t.Fatal("expected plain errors to carry no code")
	}
}
