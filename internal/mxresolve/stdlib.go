package mxresolve

import (
	"context"
	"net"
)

// dnsResolver abstracts the one stdlib call this package needs, purely
// so lookupMXStdlib has a named seam to sit behind; tests exercise
// Resolver.LookupMX directly instead of this type.
type dnsResolver interface {
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)
}

type stdlibResolver struct {
	resolver net.Resolver
}

func (s *stdlibResolver) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	return s.resolver.LookupMX(ctx, domain)
}
