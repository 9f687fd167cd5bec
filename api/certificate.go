package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bartossh/Rampart/entity"
	"github.com/bartossh/Rampart/resource"
)

var ErrUnknownProvider = errors.New("unknown certificate provider")

type Certificates struct {
	*resource.Client[entity.Certificate, string]
}

// ListByProvider lists certificates issued by the provider.
func (c *Certificates) ListByProvider(ctx context.Context, provider entity.CertificateProvider, pagination *resource.PageMeta) (resource.Page[entity.Certificate], error) {
	var p resource.Page[entity.Certificate]
	if !provider.Valid() {
		return p, errors.Join(ErrUnknownProvider, fmt.Errorf("provider %q", provider))
	}
	q := url.Values{"provider": {string(provider)}}
	withPage(q, pagination)
	err := c.Send(ctx, http.MethodGet, "", q, nil, &p)
	return p, err
}

// ForceRenew asks the server to renew a managed certificate on the next apply.
func (c *Certificates) ForceRenew(ctx context.Context, id string) (entity.Certificate, error) {
	return c.Patch(ctx, id, map[string]bool{"force_renew": true})
}

type Services struct {
	*resource.Client[entity.Service, string]
}

// SetRateLimit toggles rate limiting of the service.
func (s *Services) SetRateLimit(ctx context.Context, id string, enabled bool) (entity.Service, error) {
	return s.Patch(ctx, id, map[string]bool{"rate_limit": enabled})
}

func withPage(q url.Values, pagination *resource.PageMeta) {
	if pagination == nil {
		return
	}
	q.Set("page", fmt.Sprint(pagination.Page))
	q.Set("size", fmt.Sprint(pagination.PerPage))
}
