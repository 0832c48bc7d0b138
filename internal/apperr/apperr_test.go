package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := Wrap(KindStorageUpload, "put object", errors.New("connection reset"))
	if KindOf(err) != KindStorageUpload {
		t.Errorf("expected storage_upload kind, got %s", KindOf(err))
	}

	// Kind survives further wrapping.
	wrapped := fmt.Errorf("materialize image: %w", err)
	if KindOf(wrapped) != KindStorageUpload {
		t.Errorf("expected kind to survive wrapping, got %s", KindOf(wrapped))
	}

	if KindOf(errors.New("plain")) != "" {
		t.Error("plain error should have no kind")
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(Transient(KindPlatformAPI, "503 from platform", nil)) {
		t.Error("transient error should be retryable")
	}
	if IsTransient(New(KindAuth, "token rejected")) {
		t.Error("auth error should not be retryable")
	}
	if !IsTransient(fmt.Errorf("call: %w", context.DeadlineExceeded)) {
		t.Error("deadline expiry should be retryable")
	}
	if IsTransient(New(KindInvalidInput, "empty prompt")) {
		t.Error("invalid input should never be retried")
	}
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(KindAuth, "validate token", errors.New("401"))
	want := "auth: validate token: 401"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}
