// Package catchall decides whether a domain accepts mail for any
// local-part at all, so the orchestrator can avoid trusting a false
// positive from a mail server that never rejects anything.
package catchall

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Prober runs one RCPT probe against domain's MX host for a synthetic
// local-part and reports whether the server accepted it. It is the same
// shape as the orchestrator's own per-candidate probe call, kept generic
// here so this package doesn't import internal/smtpprobe directly.
type Prober func(ctx context.Context, domain, localPart string) (accepted bool, err error)

// Lookup is satisfied by internal/repository's CatchAllDomainRepository;
// declared locally to keep this package free of a repository import.
type Lookup interface {
	IsKnownCatchAll(ctx context.Context, domain string) (bool, error)
}

const voteCount = 3
const voteThreshold = 2

// Detect reports whether domain is a catch-all. If lookup already has a
// verdict for domain (§4.5's repository short-circuit) that verdict is
// returned without probing. Otherwise it sends voteCount probes for
// random, virtually-nonexistent local-parts and calls the domain a
// catch-all if at least voteThreshold of them are accepted.
func Detect(ctx context.Context, lookup Lookup, prober Prober, domain string) (bool, error) {
	if lookup != nil {
		known, err := lookup.IsKnownCatchAll(ctx, domain)
		if err == nil && known {
			return true, nil
		}
	}

	accepted := 0
	for i := 0; i < voteCount; i++ {
		localPart, err := randomLocalPart()
		if err != nil {
			return false, err
		}
		ok, err := prober(ctx, domain, localPart)
		if err != nil {
			continue // a transport failure is not a vote either way
		}
		if ok {
			accepted++
		}
	}
	return accepted >= voteThreshold, nil
}

func randomLocalPart() (string, error) {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("verihunt-probe-%s", hex.EncodeToString(buf)), nil
}
