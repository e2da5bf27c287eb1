package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestAsResolvesWrappedErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"not found", fmt.Errorf("load: %w", NotFound("session %q not found", "s1")), CodeNotFound, 404},
		{"conflict", Conflict("stale version"), CodeConflict, 409},
		{"validation", Validation("name is required"), CodeValidation, 400},
		{"configuration", Configuration("intensity_range", "intensity 11 outside 1..10"), CodeConfiguration, 400},
		{"unavailable", New(CodeUnavailable, "no browser"), CodeUnavailable, 503},
		{"plain", errors.New("boom"), CodeInternal, 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ae := As(tc.err)
			if ae.Code != tc.code || ae.Status != tc.status {
				t.Fatalf("As() = %s/%d, want %s/%d", ae.Code, ae.Status, tc.code, tc.status)
			}
		})
	}
}

func TestSentinels(t *testing.T) {
	if !errors.Is(NotFound("x"), ErrNotFound) {
		t.Fatal("NotFound should match ErrNotFound")
	}
	if !errors.Is(Conflict("x"), ErrConflict) {
		t.Fatal("Conflict should match ErrConflict")
	}
	if errors.Is(Validation("x"), ErrNotFound) {
		t.Fatal("validation error matched ErrNotFound")
	}
}

func TestConfigurationError(t *testing.T) {
	err := fmt.Errorf("apply: %w", Configuration("five_forces", "missing force %s", "rivalry"))
	if !IsConfiguration(err) {
		t.Fatal("expected configuration error")
	}
	var ce *ConfigurationError
	if !errors.As(err, &ce) || ce.Invariant != "five_forces" {
		t.Fatalf("unexpected configuration error: %v", err)
	}
	if got := ce.Error(); got != "configuration error (five_forces): missing force rivalry" {
		t.Fatalf("Error() = %q", got)
	}
	if IsConfiguration(Validation("x")) {
		t.Fatal("validation error reported as configuration")
	}
}
