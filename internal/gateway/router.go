package gateway

import (
	"context"
	"time"

	"github.com/brainsait/reconciler/internal/domain"
)

// Fetcher returns provider-side records for a window.
type Fetcher interface {
	FetchTransactions(ctx context.Context, provider domain.Provider, start, end time.Time) ([]domain.TransactionRecord, error)
}

// Router sends each provider to its live Client when one is configured and to
// the stored feed otherwise.
type Router struct {
	live   map[domain.Provider]*Client
	stored Fetcher
}

func NewRouter(stored Fetcher, clients ...*Client) *Router {
	r := &Router{live: make(map[domain.Provider]*Client, len(clients)), stored: stored}
	for _, c := range clients {
		r.live[c.Provider()] = c
	}
	return r
}

func (r *Router) FetchTransactions(ctx context.Context, provider domain.Provider, start, end time.Time) ([]domain.TransactionRecord, error) {
	if c, ok := r.live[provider]; ok {
		return c.FetchTransactions(ctx, provider, start, end)
	}
	return r.stored.FetchTransactions(ctx, provider, start, end)
}

// Live reports whether provider is fetched from its API.
func (r *Router) Live(provider domain.Provider) bool {
	_, ok := r.live[provider]
	return ok
}
