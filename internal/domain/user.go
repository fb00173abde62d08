// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen   = 36
	MaxUsernameLen = 64
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUnknownProvider = errors.New("unknown provider")
)

type UserID string

// Provider names a third-party catalog a user can link.
type Provider string

const (
	ProviderYouTube    Provider = "youtube"
	ProviderSoundCloud Provider = "soundcloud"
)

func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(s)); p {
	case ProviderYouTube, ProviderSoundCloud:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// Credential is what the server keeps to act on a user's behalf
// against one provider.
type Credential struct {
	ClientID     string    `json:"-"`
	Username     string    `json:"username,omitempty"`
	Avatar       string    `json:"avatar,omitempty"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	Expiry       time.Time `json:"-"`
}

func (c Credential) Linked() bool { return c.ClientID != "" }

// Expired reports whether the token is unusable at now, treating
// anything within skew of the expiry as already expired. A zero
// expiry means the token does not expire.
func (c Credential) Expired(now time.Time, skew time.Duration) bool {
	if c.Expiry.IsZero() {
		return false
	}
	return !now.Add(skew).Before(c.Expiry)
}

type User struct {
	ID          UserID                  `json:"id"`
	Name        string                  `json:"name"`
	Avatar      string                  `json:"avatar,omitempty"`
	Credentials map[Provider]Credential `json:"-"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(name string) (*User, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return &User{ID: UserID(uuid.NewString()), Name: name}, nil
}

// NewGuest creates an unregistered identity with a generated name.
func NewGuest() *User {
	id := uuid.NewString()
	return &User{ID: UserID(id), Name: "Guest " + id[:4]}
}

func (u *User) SetName(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	u.Name = name
	return nil
}

func (u *User) Credential(p Provider) Credential {
	if u.Credentials == nil {
		return Credential{}
	}
	return u.Credentials[p]
}

// Link merges a provider credential into the user.
func (u *User) Link(p Provider, c Credential) {
	if u.Credentials == nil {
		u.Credentials = make(map[Provider]Credential)
	}
	u.Credentials[p] = c
}

// Unlink drops every field for the provider at once.
func (u *User) Unlink(p Provider) {
	delete(u.Credentials, p)
}

func (u *User) Linked(p Provider) bool { return u.Credential(p).Linked() }

func validateName(name string) error {
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}
