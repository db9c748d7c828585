package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/ManuelReschke/TicketFox/internal/pkg/shortener"
)

const (
	// TicketTokenLength is the number of base62 characters in a ticket token.
	TicketTokenLength = 32

	ticketKeyInfo = "ticketfox/ticket-signature/v1"
	signatureLen  = sha256.Size * 2
)

var (
	ErrMissingSecret = errors.New("ticket signing secret is not configured")
	ErrEmptyToken    = errors.New("ticket token is empty")
)

// TicketSigner signs and verifies ticket tokens with HMAC-SHA256. The key is
// derived from the configured secret, which is never used directly.
type TicketSigner struct {
	key []byte
}

// NewTicketSigner derives the signing key from secret. An empty secret gives
// a signer that refuses to sign and rejects every signature.
func NewTicketSigner(secret string) *TicketSigner {
	if secret == "" {
		return &TicketSigner{}
	}
	key := make([]byte, sha256.Size)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(ticketKeyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return &TicketSigner{}
	}
	return &TicketSigner{key: key}
}

// Configured reports whether the signer has a key.
func (s *TicketSigner) Configured() bool {
	return s != nil && len(s.key) > 0
}

// Sign returns the lowercase hex HMAC of token.
func (s *TicketSigner) Sign(token string) (string, error) {
	if !s.Configured() {
		return "", ErrMissingSecret
	}
	if token == "" {
		return "", ErrEmptyToken
	}
	return hex.EncodeToString(s.mac(token)), nil
}

// Verify reports whether signature belongs to token. It never panics and
// answers false on any malformed input.
func (s *TicketSigner) Verify(token, signature string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	if !s.Configured() || token == "" || len(signature) != signatureLen {
		return false
	}
	given, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(given, s.mac(token))
}

func (s *TicketSigner) mac(token string) []byte {
	m := hmac.New(sha256.New, s.key)
	m.Write([]byte(token))
	return m.Sum(nil)
}

// NewTicketToken returns a random base62 token for a new ticket.
func NewTicketToken() (string, error) {
	return shortener.GenerateSecureSlug(TicketTokenLength)
}
