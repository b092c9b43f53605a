package pverr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	base := errors.New("disk full")
	err := New(KindImport, base)
	want := "import_error: disk full"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestClassifyOfWrapped(t *testing.T) {
	base := New(KindTransient, errors.New("EAGAIN"))
	wrapped := fmt.Errorf("frameloader: import failed: %w", base)

	if got := ClassifyOf(wrapped); got != KindTransient {
		t.Errorf("ClassifyOf(wrapped) = %v, want KindTransient", got)
	}
	if !IsTransient(wrapped) {
		t.Error("IsTransient(wrapped) = false, want true")
	}
}

func TestClassifyOfUnrelated(t *testing.T) {
	if got := ClassifyOf(errors.New("plain")); got != KindUnknown {
		t.Errorf("ClassifyOf(plain) = %v, want KindUnknown", got)
	}
}

func TestKindStrings(t *testing.T) {
	cases := map[Kind]string{
		KindNotFound:  "not_found",
		KindDecode:    "decode_error",
		KindImport:    "import_error",
		KindDriver:    "driver_error",
		KindTransient: "transient",
		KindUnknown:   "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
