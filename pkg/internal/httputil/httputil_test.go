package httputil

import (
	"os"
	"testing"
)

func TestNewClientUsesPollTimeout(t *testing.T) {
	client := NewClient(ClientOptions{})
	if client.Timeout != PollTimeout {
		t.Errorf("expected timeout %v, got %v", PollTimeout, client.Timeout)
	}
	if client.Transport == nil {
		t.Fatalf("expected a configured transport")
	}
}

func TestReadTokenFileMissingReturnsEmpty(t *testing.T) {
	if got := ReadTokenFile("/nonexistent/token"); got != "" {
		t.Errorf("expected empty string for missing file, got %q", got)
	}
}

func TestReadTokenFileTrimsWhitespace(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "token")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString("  secret-token\n"); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()

	if got := ReadTokenFile(f.Name()); got != "secret-token" {
		t.Errorf("got %q, want %q", got, "secret-token")
	}
}
