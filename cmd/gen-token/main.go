// Command gen-token prints HS256 tokens accepted by a server running with
// AUTH0_TEST_MODE=1.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"repricelab/internal/testutil"
)

func main() {
	var (
		count  = flag.IntP("count", "n", 1, "number of tokens to generate")
		prefix = flag.String("prefix", "agent", "prefix for generated user IDs when count > 1")
		start  = flag.Int("start", 1, "starting index for generated user IDs when count > 1")
		output = flag.StringP("output", "o", "", "file to write generated tokens as a JSON array")
		secret = flag.String("secret", os.Getenv("TEST_JWT_SECRET"), "HS256 signing secret (defaults to TEST_JWT_SECRET)")
		ttl    = flag.Duration("ttl", testutil.DefaultTTL, "token lifetime")
	)
	flag.Parse()

	tokens, err := generateTokens(*secret, *count, *prefix, *start, *ttl, flag.Args())
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}

	if *output != "" {
		if err := writeTokens(*output, tokens); err != nil {
			log.Fatalf("write tokens: %v", err)
		}
	}

	fmt.Print(tokens[0])
}

func generateTokens(secret string, count int, prefix string, start int, ttl time.Duration, args []string) ([]string, error) {
	if count < 1 {
		return nil, errors.New("count must be at least 1")
	}
	if start < 1 {
		return nil, errors.New("start index must be at least 1")
	}
	if len(args) > 0 && count > 1 {
		return nil, errors.New("explicit user ID cannot be provided when generating multiple tokens")
	}

	tokens := make([]string, count)
	for i := 0; i < count; i++ {
		var userID string
		switch {
		case len(args) > 0:
			userID = args[0]
		case count == 1:
			userID = prefix
		default:
			userID = fmt.Sprintf("%s-%d", prefix, start+i)
		}

		tok, err := testutil.TestToken(secret, userID, ttl)
		if err != nil {
			return nil, err
		}
		tokens[i] = tok
	}
	return tokens, nil
}

func writeTokens(path string, tokens []string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
