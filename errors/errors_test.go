package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_KindSurvivesWrapping(t *testing.T) {
	inner := InvalidResourceID(7)
	wrapped := fmt.Errorf("create blob: %w", inner)

	if got := KindOf(wrapped); got != KindInvalidResourceID {
		t.Fatalf("Expected kind %q, got %q", KindInvalidResourceID, got)
	}
	if !IsKind(wrapped, KindInvalidResourceID) {
		t.Fatal("IsKind should see through fmt.Errorf wrapping")
	}
}

func TestError_IsMatchesOnKind(t *testing.T) {
	a := Component(-22)
	b := Component(-5)

	if !stderrors.Is(a, b) {
		t.Fatal("Component errors with different status codes should match on kind")
	}
	if stderrors.Is(a, Unsupported("x")) {
		t.Fatal("Different kinds should not match")
	}
}

func TestError_StatusPreservedVerbatim(t *testing.T) {
	err := Component(-71)

	var e *Error
	if !stderrors.As(err, &e) {
		t.Fatal("As failed")
	}
	if e.Status != -71 {
		t.Fatalf("Expected status -71, got %d", e.Status)
	}
	if !strings.Contains(err.Error(), "-71") {
		t.Fatalf("Status code missing from message: %q", err.Error())
	}
}

func TestError_CauseChain(t *testing.T) {
	root := stderrors.New("mmap failed")
	err := Transport("map blob", root)

	if !stderrors.Is(err, root) {
		t.Fatal("Cause should be reachable through Unwrap")
	}
	if KindOf(err) != KindTransport {
		t.Fatalf("Expected transport kind, got %q", KindOf(err))
	}
}

func TestBuilder(t *testing.T) {
	cause := stderrors.New("backend down")
	err := New(KindSnapshot).
		Detail("context %d", 3).
		Cause(cause).
		Build()

	if err.Kind != KindSnapshot {
		t.Fatalf("Expected snapshot kind, got %q", err.Kind)
	}
	if err.Detail != "context 3" {
		t.Fatalf("Expected formatted detail, got %q", err.Detail)
	}
	if !stderrors.Is(err, cause) {
		t.Fatal("Cause lost")
	}
}

func TestKindOf_ForeignErrorIsInternal(t *testing.T) {
	if got := KindOf(stderrors.New("plain")); got != KindInternal {
		t.Fatalf("Expected internal, got %q", got)
	}
}

func TestIsKind_NilError(t *testing.T) {
	if IsKind(nil, KindInternal) {
		t.Fatal("nil error should not match any kind")
	}
}
