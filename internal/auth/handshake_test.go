package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner_RoundTrip(t *testing.T) {
	s := NewSigner("s3cret")
	id := Identity{ID: "u1", Name: "Alice", Avatar: "https://example.com/a.png"}

	token := s.Token(id)
	require.Len(t, token, 64)
	assert.NoError(t, s.Verify(id, token))
}

func TestSigner_Rejects(t *testing.T) {
	s := NewSigner("s3cret")
	id := Identity{ID: "u1", Name: "Alice"}
	token := s.Token(id)

	tests := []struct {
		name  string
		id    Identity
		token string
		want  error
	}{
		{"renamed", Identity{ID: "u1", Name: "Mallory"}, token, ErrInvalidToken},
		{"new avatar", Identity{ID: "u1", Name: "Alice", Avatar: "x"}, token, ErrInvalidToken},
		{"other secret", id, NewSigner("other").Token(id), ErrInvalidToken},
		{"not hex", id, "zz", ErrInvalidToken},
		{"missing token", id, "", ErrMissingField},
		{"missing id", Identity{Name: "Alice"}, token, ErrMissingField},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, s.Verify(tc.id, tc.token), tc.want)
		})
	}
}

func TestSigner_FieldBoundaries(t *testing.T) {
	s := NewSigner("s3cret")
	a := s.Token(Identity{ID: "ab", Name: "c"})
	b := s.Token(Identity{ID: "a", Name: "bc"})
	assert.NotEqual(t, a, b)
}
