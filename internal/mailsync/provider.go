package mailsync

import (
	"context"
	"sort"
	"sync"
)

// ProviderClient fetches deltas for one provider.
//
// FetchDelta returns every record after since, in provider order. expired
// reports that the provider rejected the credential; err is reserved for
// transport and server failures.
type ProviderClient interface {
	FetchDelta(ctx context.Context, cred Credential, since string) (records []IncomingRecord, expired bool, err error)
	RefreshCredential(ctx context.Context, refreshToken string) (*Credential, error)
}

// MarkerOrdering is implemented by providers whose markers are comparable.
// It keeps a late, out-of-order notification from moving a cursor backwards.
type MarkerOrdering interface {
	MarkerBefore(a, b string) bool
}

type Registry struct {
	mu      sync.RWMutex
	clients map[string]ProviderClient
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]ProviderClient)}
}

func (r *Registry) Register(provider string, client ProviderClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[provider] = client
}

func (r *Registry) Get(provider string) (ProviderClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[provider]
	return c, ok
}

func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
