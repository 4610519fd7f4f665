package fraud

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
)

// GeoResolver maps an IP address to an ISO 3166 alpha-2 country code. An empty
// code with a nil error means the address is unknown.
type GeoResolver interface {
	Country(ctx context.Context, ip string) (string, error)
}

type prefixEntry struct {
	prefix  netip.Prefix
	country string
}

// PrefixResolver resolves addresses against a static CIDR table. The most
// specific matching prefix wins.
type PrefixResolver struct {
	entries []prefixEntry
}

// NewPrefixResolver builds a resolver from CIDR → country pairs.
func NewPrefixResolver(table map[string]string) (*PrefixResolver, error) {
	r := &PrefixResolver{}
	for cidr, country := range table {
		p, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err != nil {
			return nil, fmt.Errorf("parse prefix %q: %w", cidr, err)
		}
		r.entries = append(r.entries, prefixEntry{prefix: p.Masked(), country: strings.ToUpper(country)})
	}
	return r, nil
}

func (r *PrefixResolver) Country(_ context.Context, ip string) (string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return "", fmt.Errorf("parse ip %q: %w", ip, err)
	}
	addr = addr.Unmap()

	best := -1
	country := ""
	for _, e := range r.entries {
		if e.prefix.Contains(addr) && e.prefix.Bits() > best {
			best = e.prefix.Bits()
			country = e.country
		}
	}
	return country, nil
}
