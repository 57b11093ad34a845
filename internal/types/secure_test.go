package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestSecretStringRedactsEverywhere(t *testing.T) {
	s := SecretString("mnd-token-123")

	if got := fmt.Sprintf("%s %v", s, s); strings.Contains(got, "mnd-token-123") {
		t.Errorf("fmt leaked secret: %q", got)
	}

	b, err := json.Marshal(struct {
		Token SecretString `json:"token"`
	}{Token: s})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), "mnd-token-123") {
		t.Errorf("json leaked secret: %s", b)
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("configured", "token", s)
	if strings.Contains(buf.String(), "mnd-token-123") {
		t.Errorf("slog leaked secret: %s", buf.String())
	}
}

func TestSecretStringUnmaskAndIsSet(t *testing.T) {
	if SecretString("").IsSet() {
		t.Error("empty secret should not be set")
	}
	s := SecretString("key")
	if !s.IsSet() || s.Unmask() != "key" {
		t.Errorf("Unmask() = %q, IsSet() = %v", s.Unmask(), s.IsSet())
	}
}
