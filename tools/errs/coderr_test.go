package errs

import (
	"errors"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := ErrNotFound.WrapMsg("unknown message", "id", "abc")
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("wrapped error should match its sentinel by code")
	}
	if errors.Is(err, ErrValidation) {
		t.Fatal("wrapped error must not match a different code")
	}
}

func TestWrapMsgKeepsOriginalUntouched(t *testing.T) {
	before := ErrUpload.Detail
	_ = ErrUpload.WrapMsg("put object", "name", "x.png")
	if ErrUpload.Detail != before {
		t.Fatal("WrapMsg must clone, not mutate the sentinel")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(ErrAuth.WrapMsg("bad token")); got != AuthErrorCode {
		t.Fatalf("CodeOf = %d, want %d", got, AuthErrorCode)
	}
	if got := CodeOf(errors.New("plain")); got != InternalErrorCode {
		t.Fatalf("CodeOf(plain) = %d, want %d", got, InternalErrorCode)
	}
}

func TestErrorStringCarriesDetail(t *testing.T) {
	err := ErrValidation.WithDetail("text and image both empty")
	if want := "1001 validation failed text and image both empty"; err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
