package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrap_ErrorIncludesOp(t *testing.T) {
	err := Wrap("Snapshot", CodeUnavailable, errors.New("frame detached"), nil)

	if got := err.Error(); got != "Snapshot: frame detached" {
		t.Errorf("Error() = %q", got)
	}
}

func TestCodeOf_FindsCodeThroughWrapping(t *testing.T) {
	inner := WrapErrorWithReason("Load", CodeNotFound, "tour_missing")
	outer := fmt.Errorf("loading tour: %w", inner)

	if got := CodeOf(outer); got != CodeNotFound {
		t.Errorf("CodeOf() = %q, want %q", got, CodeNotFound)
	}

	if got := Reason(outer); got != "tour_missing" {
		t.Errorf("Reason() = %q, want tour_missing", got)
	}
}

func TestCodeOf_PlainError(t *testing.T) {
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %q, want empty", got)
	}

	if got := Reason(nil); got != "" {
		t.Errorf("Reason(nil) = %q, want empty", got)
	}
}

func TestInvalidReqError_CarriesField(t *testing.T) {
	err := InvalidReqError("Capture", "selector", errors.New("empty"))

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *Error, got %T", err)
	}

	if appErr.Metadata[MetaField] != "selector" {
		t.Errorf("field = %v", appErr.Metadata[MetaField])
	}

	if appErr.Code != CodeInvalidArgument {
		t.Errorf("code = %q", appErr.Code)
	}
}
