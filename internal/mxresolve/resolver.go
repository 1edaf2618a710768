// Package mxresolve does DNS MX lookups and company-name-to-domain
// guessing, with a short-lived in-memory cache the same shape as the
// teacher's mxCache (sync.RWMutex over a map) so repeated requests for
// the same employer don't re-hit DNS on every candidate.
package mxresolve

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"verihunt/verrors"
)

// Exchange is one MX record, sorted ascending by Priority when returned
// from Resolve.
type Exchange struct {
	Host     string
	Priority uint16
}

// legalSuffixWords are dropped from the end of a company name, one word
// at a time, before slugification.
var legalSuffixWords = map[string]bool{
	"inc": true, "incorporated": true, "llc": true, "ltd": true,
	"limited": true, "corp": true, "corporation": true, "co": true,
	"company": true, "gmbh": true, "plc": true, "llp": true,
}

// candidateTLDs is the fixed, declared-order suffix list tried when
// guessing a domain from a bare company name.
var candidateTLDs = []string{".com", ".io", ".co", ".net", ".org", ".ai"}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Resolver performs MX lookups through an injectable net.Resolver seam
// (LookupMX) so tests can fake DNS without touching the network, the
// same seam optimode-emailkit's dnscache.Cache and the teacher's
// getMXRecords both use.
type Resolver struct {
	LookupMX func(ctx context.Context, domain string) ([]Exchange, error)
	Timeout  time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	exchanges []Exchange
	expiresAt time.Time
}

// New builds a Resolver backed by the standard library's DNS resolver.
func New() *Resolver {
	r := &Resolver{
		Timeout: 5 * time.Second,
		cache:   make(map[string]cacheEntry),
		ttl:     5 * time.Minute,
	}
	r.LookupMX = r.lookupMXStdlib
	return r
}

// Resolve returns the MX hosts for domain sorted ascending by priority.
// An empty result set is reported as verrors.NoMXRecord; DNS transport
// failures are wrapped as verrors.VerificationError.
func (r *Resolver) Resolve(ctx context.Context, domain string) ([]Exchange, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))

	r.mu.RLock()
	if entry, ok := r.cache[domain]; ok && time.Now().Before(entry.expiresAt) {
		r.mu.RUnlock()
		if len(entry.exchanges) == 0 {
			return nil, verrors.New(verrors.NoMXRecord, domain)
		}
		return entry.exchanges, nil
	}
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	exchanges, err := r.LookupMX(ctx, domain)
	if err != nil {
		return nil, verrors.Wrap(verrors.VerificationError, err)
	}

	sort.Slice(exchanges, func(i, j int) bool {
		return exchanges[i].Priority < exchanges[j].Priority
	})

	r.mu.Lock()
	r.cache[domain] = cacheEntry{exchanges: exchanges, expiresAt: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	if len(exchanges) == 0 {
		return nil, verrors.New(verrors.NoMXRecord, domain)
	}
	return exchanges, nil
}

// GuessDomain slugifies companyName and tries each candidate TLD in
// declared order, returning the first one with a non-empty MX set.
func (r *Resolver) GuessDomain(ctx context.Context, companyName string) (string, []Exchange, error) {
	slug := Slugify(companyName)
	if slug == "" {
		return "", nil, verrors.New(verrors.DomainUnknown, companyName)
	}

	for _, tld := range candidateTLDs {
		candidate := slug + tld
		exchanges, err := r.Resolve(ctx, candidate)
		if err == nil && len(exchanges) > 0 {
			return candidate, exchanges, nil
		}
	}
	return "", nil, verrors.New(verrors.DomainUnknown, companyName)
}

// Slugify lowercases a company name to ASCII, drops trailing legal-form
// words (Inc, LLC, ...), and collapses the remaining words together.
func Slugify(name string) string {
	normalized := nonAlnum.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), " ")
	words := strings.Fields(normalized)
	for len(words) > 0 && legalSuffixWords[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, "")
}

func (r *Resolver) lookupMXStdlib(ctx context.Context, domain string) ([]Exchange, error) {
	var resolver dnsResolver = &stdlibResolver{}
	records, err := resolver.LookupMX(ctx, domain)
	if err != nil {
		return nil, err
	}
	out := make([]Exchange, 0, len(records))
	for _, rec := range records {
		out = append(out, Exchange{Host: strings.TrimSuffix(rec.Host, "."), Priority: rec.Pref})
	}
	return out, nil
}
