package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestNormalizeCommand(t *testing.T) {
	out, _, err := run(t, "normalize", "--dial-code", "+1", "(415) 555-0100")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if strings.TrimSpace(out) != "14155550100" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestNormalizeCommandJSON(t *testing.T) {
	out, _, err := run(t, "normalize", "--json", "--dial-code", "+44", "07400 123456")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got["canonical"] != "447400123456" || got["e164"] != "+447400123456" || got["country"] != "GB" || got["valid"] != true {
		t.Fatalf("unexpected output %v", got)
	}
}

func TestCodesPopular(t *testing.T) {
	out, _, err := run(t, "codes", "--popular")
	if err != nil {
		t.Fatalf("codes: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 8 {
		t.Fatalf("expected header plus 7 codes, got %d lines:\n%s", len(lines), out)
	}
	if !strings.Contains(out, "GBR") || !strings.Contains(out, "+44") {
		t.Fatalf("expected GBR +44 in output:\n%s", out)
	}
}

func TestVerifyRequiresProviderOrBroker(t *testing.T) {
	t.Setenv("BROKER_URL", "")
	t.Setenv("PROVIDER_CLIENT_ID", "")
	t.Setenv("PROVIDER_CLIENT_SECRET", "")

	_, _, err := run(t, "verify", "--dial-code", "+44", "--phone", "07700 900000")
	if err == nil || !strings.Contains(err.Error(), "PROVIDER_CLIENT_ID") {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, _, err := run(t, "verify", "--dial-code", "+44", "--phone", "call me")
	if err == nil || errors.Is(err, errNotVerified) {
		t.Fatalf("expected input error, got %v", err)
	}
}

func TestVerifyReportsFailedAttempt(t *testing.T) {
	t.Setenv("CELLULAR_INTERFACE", "")
	t.Setenv("BROKER_URL", "")
	t.Setenv("PROVIDER_CLIENT_ID", "id")
	t.Setenv("PROVIDER_CLIENT_SECRET", "secret")
	// Unroutable provider: the attempt fails at the token step.
	t.Setenv("PROVIDER_BASE_URL", "http://127.0.0.1:1")
	t.Setenv("REQUEST_TIMEOUT", "1s")

	out, _, err := run(t, "verify", "--json", "--dial-code", "+44", "--phone", "07700 900000")
	if !errors.Is(err, errNotVerified) {
		t.Fatalf("expected not verified, got %v", err)
	}
	var got verifyOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.State != "failed" || got.Kind != "error" {
		t.Fatalf("unexpected output %+v", got)
	}
}
