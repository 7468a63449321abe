// Package random provides the token-generator capability used by the client
// registry and the token ledger. Generated values are opaque random strings;
// the prefix tags a token's family for debug legibility only and carries no
// parsed structure.
package random

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Token family prefixes.
const (
	PrefixAuthCode     = "ac_"
	PrefixAccessToken  = "at_"
	PrefixRefreshToken = "rt_"
	PrefixClientSecret = "secret_"
)

// Generator produces unpredictable identifier strings. It is injected rather
// than called as a package function so tests can substitute a deterministic
// source.
type Generator interface {
	// String returns a random string from n bytes of entropy.
	String(n int) string
	// Token returns prefix + a random string from n bytes of entropy.
	Token(prefix string, n int) string
}

// New returns a Generator backed by crypto/rand.
func New() Generator {
	return cryptoGenerator{}
}

type cryptoGenerator struct{}

func (cryptoGenerator) String(n int) string {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		panic(fmt.Errorf("failed to generate random string: %w", err))
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}

func (g cryptoGenerator) Token(prefix string, n int) string {
	return prefix + g.String(n)
}
