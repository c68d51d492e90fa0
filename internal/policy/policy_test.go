package policy

import (
	"testing"

	clierr "github.com/ggonzalez94/volume-bot/internal/errors"
)

func TestCheckCommandAllowed(t *testing.T) {
	if err := CheckCommandAllowed(nil, "cycles list"); err != nil {
		t.Fatalf("unexpected error with empty allowlist: %v", err)
	}
	if err := CheckCommandAllowed([]string{"Cycles  List"}, "cycles list"); err != nil {
		t.Fatalf("expected command to be allowed: %v", err)
	}
	if err := CheckCommandAllowed([]string{"plan"}, "serve"); !clierr.Is(err, clierr.CodeBlocked) {
		t.Fatalf("expected command to be blocked, got %v", err)
	}
}

func TestCheckUserAllowed(t *testing.T) {
	if err := CheckUserAllowed(nil, 7); err != nil {
		t.Fatalf("empty allowlist must admit everyone: %v", err)
	}
	if err := CheckUserAllowed([]int64{7, 9}, 9); err != nil {
		t.Fatalf("expected user 9 to be allowed: %v", err)
	}
	err := CheckUserAllowed([]int64{7}, 8)
	if !clierr.Is(err, clierr.CodeBlocked) {
		t.Fatalf("expected blocked error, got %v", err)
	}
	if clierr.ExitCode(err) != 16 {
		t.Fatalf("expected exit code 16, got %d", clierr.ExitCode(err))
	}
}
