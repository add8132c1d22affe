package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func subject(t *testing.T, tok string) string {
	t.Helper()
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) { return []byte("s3cret"), nil }); err != nil {
		t.Fatalf("parse token: %v", err)
	}
	sub, _ := claims["sub"].(string)
	return sub
}

func TestGenerateTokensNumbersUsers(t *testing.T) {
	tokens, err := generateTokens("s3cret", 3, "agent", 5, time.Minute, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	want := []string{"agent-5", "agent-6", "agent-7"}
	for i, tok := range tokens {
		if got := subject(t, tok); got != want[i] {
			t.Fatalf("token %d: expected sub %q, got %q", i, want[i], got)
		}
	}
}

func TestGenerateTokensExplicitUser(t *testing.T) {
	tokens, err := generateTokens("s3cret", 1, "agent", 1, time.Minute, []string{"priya"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := subject(t, tokens[0]); got != "priya" {
		t.Fatalf("expected sub priya, got %q", got)
	}
}

func TestGenerateTokensRejectsBadInput(t *testing.T) {
	cases := []struct {
		name   string
		secret string
		count  int
		start  int
		args   []string
	}{
		{"zero count", "s3cret", 0, 1, nil},
		{"zero start", "s3cret", 1, 0, nil},
		{"explicit user with count", "s3cret", 2, 1, []string{"priya"}},
		{"missing secret", "", 1, 1, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := generateTokens(tc.secret, tc.count, "agent", tc.start, time.Minute, tc.args); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestWriteTokensCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	if err := writeTokens(path, []string{"a", "b"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got []string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0] != "a" {
		t.Fatalf("unexpected tokens %v", got)
	}
}
