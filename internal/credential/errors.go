package credential

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dkeye/Tandem/internal/domain"
)

var (
	ErrUnknownUser   = errors.New("unknown user")
	ErrNotLinked     = errors.New("provider not linked")
	ErrMissingToken  = errors.New("no access token")
	ErrRefreshFailed = errors.New("token refresh failed")
)

// CredentialError means the request could not be authorized on the
// user's behalf. Nothing was sent to the provider.
type CredentialError struct {
	Provider domain.Provider
	Err      error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("%s credential: %v", e.Provider, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// Code is the stable identifier sent to clients.
func (e *CredentialError) Code() string {
	switch {
	case errors.Is(e.Err, ErrNotLinked):
		return "not_linked"
	case errors.Is(e.Err, ErrMissingToken):
		return "missing_token"
	case errors.Is(e.Err, ErrRefreshFailed):
		return "refresh_failed"
	case errors.Is(e.Err, ErrUnknownUser):
		return "unknown_user"
	}
	return "credential"
}

// ProviderError carries a provider's own error response back to the caller.
type ProviderError struct {
	Provider domain.Provider
	Status   int
	Header   http.Header
	Body     []byte
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s responded %d", e.Provider, e.Status)
}
