package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := New(CodeCredentialTenantKeyMissing, "tenant api key is missing")
	target := &Error{Code: CodeCredentialTenantKeyMissing}
	if !stderrors.Is(err, target) {
		t.Fatal("expected errors with the same code to match")
	}

	other := &Error{Code: CodeCredentialSharedKeyMissing}
	if stderrors.Is(err, other) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk failure")
	err := Wrap(CodeStorageNotProvisioned, "results table missing", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable via errors.Is")
	}
	if err.Error() != "results table missing" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, CodeUnknown},
		{"plain error", stderrors.New("boom"), CodeUnknown},
		{"domain error", New(CodeProviderRateLimited, "slow down"), CodeProviderRateLimited},
		{
			"wrapped domain error",
			fmt.Errorf("query: %w", New(CodeQueryEmptyTarget, "target is required")),
			CodeQueryEmptyTarget,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CodeOf(tc.err); got != tc.want {
				t.Fatalf("CodeOf = %q, want %q", got, tc.want)
			}
		})
	}
}
