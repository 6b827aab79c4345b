package tgclient

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gotd/td/tgerr"
)

func TestAuthErrorStopsRetries(t *testing.T) {
	t.Parallel()

	authErr := &AuthError{Phone: "+79990001122", Err: errors.New("SESSION_REVOKED")}
	if !authErr.StopRetry() {
		t.Fatal("AuthError.StopRetry() = false, want true")
	}
	if !errors.Is(authErr, ErrAuthExpired) {
		t.Fatal("errors.Is(AuthError, ErrAuthExpired) = false, want true")
	}

	wrapped := fmt.Errorf("execute: %w", authErr)
	var target *AuthError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As failed to unwrap AuthError")
	}
	if target.Phone != "+79990001122" {
		t.Fatalf("Phone = %q, want original", target.Phone)
	}
}

func TestIsAuthError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"marker", ErrAuthExpired, true},
		{"auth key unregistered", tgerr.New(401, "AUTH_KEY_UNREGISTERED"), true},
		{"session revoked", tgerr.New(401, "SESSION_REVOKED"), true},
		{"deactivated", tgerr.New(401, "USER_DEACTIVATED"), true},
		{"generic 401", tgerr.New(401, "SOME_NEW_AUTH_ERROR"), true},
		{"flood wait", tgerr.New(420, "FLOOD_WAIT_5"), false},
		{"plain error", errors.New("network down"), false},
		{"wrapped", fmt.Errorf("call: %w", tgerr.New(401, "SESSION_EXPIRED")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsAuthError(tt.err); got != tt.want {
				t.Fatalf("IsAuthError(%v) = %t, want %t", tt.err, got, tt.want)
			}
		})
	}
}

func TestFloodWaitExtractor(t *testing.T) {
	t.Parallel()

	wait, ok := FloodWaitExtractor(tgerr.New(420, "FLOOD_WAIT_7"))
	if !ok {
		t.Fatal("FloodWaitExtractor() ok = false for FLOOD_WAIT")
	}
	if wait != 7*time.Second {
		t.Fatalf("FloodWaitExtractor() wait = %v, want 7s", wait)
	}

	if _, ok = FloodWaitExtractor(errors.New("other")); ok {
		t.Fatal("FloodWaitExtractor() ok = true for unrelated error")
	}
}

func TestClientDisconnectIdempotent(t *testing.T) {
	t.Parallel()

	c := New("+79990001122", credFixture(), Deps{})
	// Disconnect до Connect и повторный Disconnect безопасны.
	c.Disconnect()
	c.Disconnect()
	if got := c.State(); got != StateDisconnected {
		t.Fatalf("State() = %v, want disconnected", got)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateRetrying, "retrying"},
		{StateAuthenticated, "authenticated"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Fatalf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
