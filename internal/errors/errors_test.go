package errors

import (
	"fmt"
	"testing"
)

func TestExitCodeFollowsWrappedCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", Wrap(CodeWallet, "submit transfer", fmt.Errorf("boom")))
	if got := ExitCode(err); got != int(CodeWallet) {
		t.Fatalf("expected exit code %d, got %d", CodeWallet, got)
	}
	if !HasCode(err, CodeWallet) {
		t.Fatal("expected HasCode to find wallet code")
	}
	if got := TypeOf(err); got != "wallet_error" {
		t.Fatalf("unexpected type %q", got)
	}
}

func TestTypeOfUntypedError(t *testing.T) {
	if got := TypeOf(fmt.Errorf("plain")); got != "internal_error" {
		t.Fatalf("unexpected type %q", got)
	}
	if got := ExitCode(nil); got != 0 {
		t.Fatalf("expected success exit code, got %d", got)
	}
}
