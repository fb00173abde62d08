// Package auth issues and checks the token a client presents when it
// opens a room socket.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/dkeye/Tandem/internal/domain"
)

var (
	ErrInvalidToken = errors.New("handshake token does not match identity")
	ErrMissingField = errors.New("handshake requires id, name and token")
)

// Identity is what a client claims during the handshake.
type Identity struct {
	ID     domain.UserID
	Name   string
	Avatar string
}

type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Token is the hex HMAC-SHA256 of the identity fields.
func (s *Signer) Token(id Identity) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(id.ID))
	mac.Write([]byte{0})
	mac.Write([]byte(id.Name))
	mac.Write([]byte{0})
	mac.Write([]byte(id.Avatar))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Signer) Verify(id Identity, token string) error {
	if id.ID == "" || id.Name == "" || token == "" {
		return ErrMissingField
	}
	got, err := hex.DecodeString(token)
	if err != nil {
		return ErrInvalidToken
	}
	want, _ := hex.DecodeString(s.Token(id))
	if !hmac.Equal(got, want) {
		return ErrInvalidToken
	}
	return nil
}
