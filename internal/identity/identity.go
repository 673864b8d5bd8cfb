// Package identity resolves the authenticated user for a request. The
// actual authentication happens upstream; this package only consumes the
// opaque identity the gateway attaches.
package identity

import (
	"fmt"
	"net/http"

	"github.com/msf-usa/chatd/internal/domain"
)

// Provider supplies the authenticated user record for a request.
type Provider interface {
	Authenticate(r *http.Request) (domain.User, error)
}

// HeaderProvider reads the identity the auth gateway injected into
// request headers.
type HeaderProvider struct{}

// NewHeaderProvider creates a header-based identity provider.
func NewHeaderProvider() *HeaderProvider {
	return &HeaderProvider{}
}

// Authenticate extracts the user from gateway headers.
func (p *HeaderProvider) Authenticate(r *http.Request) (domain.User, error) {
	id := r.Header.Get("X-User-Id")
	if id == "" {
		return domain.User{}, fmt.Errorf("missing authenticated user")
	}
	return domain.User{
		ID:          id,
		DisplayName: r.Header.Get("X-User-Name"),
		Email:       r.Header.Get("X-User-Email"),
	}, nil
}
