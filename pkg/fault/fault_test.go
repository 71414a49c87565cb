package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindInternal:     "INTERNAL",
		KindValidation:   "VALIDATION",
		KindNotFound:     "NOT_FOUND",
		KindConflict:     "CONFLICT",
		KindPrecondition: "PRECONDITION",
		KindCapacity:     "CAPACITY",
		KindUnavailable:  "UNAVAILABLE",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(nil, KindConflict, "X", "y"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestKindOfAndCodeOf(t *testing.T) {
	t.Run("tagged", func(t *testing.T) {
		err := New(KindConflict, "FILE_IN_USE", "file has open readers")
		if got := KindOf(err); got != KindConflict {
			t.Errorf("KindOf = %v, want KindConflict", got)
		}
		if got := CodeOf(err); got != "FILE_IN_USE" {
			t.Errorf("CodeOf = %q, want FILE_IN_USE", got)
		}
	})

	t.Run("wrapped deeper", func(t *testing.T) {
		inner := New(KindNotFound, "FOLDER_NOT_FOUND", "no such folder")
		err := fmt.Errorf("loading parent: %w", inner)
		if got := KindOf(err); got != KindNotFound {
			t.Errorf("KindOf = %v, want KindNotFound", got)
		}
		if got := CodeOf(err); got != "FOLDER_NOT_FOUND" {
			t.Errorf("CodeOf = %q, want FOLDER_NOT_FOUND", got)
		}
	})

	t.Run("untagged", func(t *testing.T) {
		err := errors.New("disk on fire")
		if got := KindOf(err); got != KindInternal {
			t.Errorf("KindOf = %v, want KindInternal", got)
		}
		if got := CodeOf(err); got != "INTERNAL" {
			t.Errorf("CodeOf = %q, want INTERNAL", got)
		}
	})
}

func TestIsMatchesByKindAndCode(t *testing.T) {
	sentinel := New(KindConflict, "DUPLICATE_NAME", "name taken")

	same := Wrap(errors.New("unique constraint"), KindConflict, "DUPLICATE_NAME", "name taken in folder")
	if !errors.Is(same, sentinel) {
		t.Error("errors.Is should match same kind and code")
	}

	otherCode := New(KindConflict, "FOLDER_NOT_EMPTY", "has children")
	if errors.Is(otherCode, sentinel) {
		t.Error("errors.Is should not match a different code")
	}

	otherKind := New(KindValidation, "DUPLICATE_NAME", "name taken")
	if errors.Is(otherKind, sentinel) {
		t.Error("errors.Is should not match a different kind")
	}
}

func TestErrorString(t *testing.T) {
	plain := New(KindValidation, "INVALID_NAME", "name contains a slash")
	if got, want := plain.Error(), "INVALID_NAME: name contains a slash"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	wrapped := Wrap(errors.New("boom"), KindInternal, "DB_ERROR", "commit failed")
	if got, want := wrapped.Error(), "DB_ERROR: commit failed: boom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := Wrap(cause, KindInternal, "X", "y")
	if !errors.Is(err, cause) {
		t.Error("wrapped error should unwrap to its cause")
	}
}

func TestChain(t *testing.T) {
	if got := Chain(nil); got != "" {
		t.Errorf("Chain(nil) = %q, want empty", got)
	}

	cause := errors.New("connection reset")
	err := Wrap(cause, KindInternal, "NAS_IO", "mkdir failed")
	got := Chain(err)
	want := "NAS_IO: mkdir failed: connection reset <- connection reset"
	if got != want {
		t.Errorf("Chain = %q, want %q", got, want)
	}
}
