package verify

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"verihunt/internal/ippool"
	"verihunt/internal/mxresolve"
	"verihunt/internal/smtpprobe"
	"verihunt/models"
)

// fakeCompanyRepo, fakePatternRepo, fakePersonRepo and fakeCatchAllRepo
// are minimal in-memory stand-ins for internal/repository's interfaces,
// letting the orchestrator be exercised without a database — the same
// dependency-injection seam optimode-emailkit uses for its dialer.

type fakeCompanyRepo struct {
	byDomain map[string]*models.Company
	catchAll map[string]bool
}

func newFakeCompanyRepo() *fakeCompanyRepo {
	return &fakeCompanyRepo{byDomain: map[string]*models.Company{}, catchAll: map[string]bool{}}
}

func (f *fakeCompanyRepo) FindByNameOrDomain(ctx context.Context, name, domain string) (*models.Company, error) {
	if c, ok := f.byDomain[domain]; ok {
		return c, nil
	}
	for _, c := range f.byDomain {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeCompanyRepo) Upsert(ctx context.Context, name, domain, whois string) (*models.Company, error) {
	if c, ok := f.byDomain[domain]; ok {
		return c, nil
	}
	c := &models.Company{ID: uint(len(f.byDomain) + 1), Name: name, Domain: domain, WHOIS: whois}
	f.byDomain[domain] = c
	return c, nil
}

func (f *fakeCompanyRepo) BumpPattern(ctx context.Context, companyID uint, pattern string) error {
	for _, c := range f.byDomain {
		if c.ID != companyID {
			continue
		}
		for i, p := range c.VerifiedPatterns {
			if p.Pattern == pattern {
				c.VerifiedPatterns[i].UsageCount++
				c.VerifiedPatterns[i].LastVerified = time.Now()
				return nil
			}
		}
		c.VerifiedPatterns = append(c.VerifiedPatterns, models.CompanyPattern{
			Pattern: pattern, UsageCount: 1, LastVerified: time.Now(),
		})
	}
	return nil
}

func (f *fakeCompanyRepo) SetCatchAll(ctx context.Context, domain string, isCatchAll bool) error {
	f.catchAll[domain] = isCatchAll
	if c, ok := f.byDomain[domain]; ok {
		c.IsCatchAll = isCatchAll
	}
	return nil
}

type fakePatternRepo struct{ bumped map[string]int }

func newFakePatternRepo() *fakePatternRepo { return &fakePatternRepo{bumped: map[string]int{}} }

func (f *fakePatternRepo) BumpGlobal(ctx context.Context, pattern string) error {
	f.bumped[pattern]++
	return nil
}

type fakePersonRepo struct {
	saved *models.Person
	logs  []models.ProbeLog
}

func (f *fakePersonRepo) FindNatural(ctx context.Context, firstName, lastName, company string) (*models.Person, error) {
	return nil, nil
}

func (f *fakePersonRepo) UpsertWithHistory(ctx context.Context, person *models.Person, logs []models.ProbeLog) error {
	f.saved = person
	f.logs = logs
	return nil
}

type fakeCatchAllRepo struct {
	known map[string]bool
}

func newFakeCatchAllRepo() *fakeCatchAllRepo { return &fakeCatchAllRepo{known: map[string]bool{}} }

func (f *fakeCatchAllRepo) Find(ctx context.Context, domain string) (*models.CatchAllDomain, error) {
	if f.known[domain] {
		return &models.CatchAllDomain{Domain: domain, VerificationAttempts: 1}, nil
	}
	return nil, nil
}

func (f *fakeCatchAllRepo) IsKnownCatchAll(ctx context.Context, domain string) (bool, error) {
	return f.known[domain], nil
}

func (f *fakeCatchAllRepo) Upsert(ctx context.Context, domain string) error {
	f.known[domain] = true
	return nil
}

func (f *fakeCatchAllRepo) Stale(ctx context.Context, olderThan time.Duration) ([]models.CatchAllDomain, error) {
	return nil, nil
}

type fakeCatchAllCache struct {
	values map[string]bool
}

func newFakeCatchAllCache() *fakeCatchAllCache {
	return &fakeCatchAllCache{values: map[string]bool{}}
}

func (f *fakeCatchAllCache) Get(domain string) (bool, bool) {
	v, ok := f.values[domain]
	return v, ok
}

func (f *fakeCatchAllCache) Set(domain string, isCatchAll bool) {
	f.values[domain] = isCatchAll
}

func newResolverFor(domain string, host string) *mxresolve.Resolver {
	r := mxresolve.New()
	r.LookupMX = func(ctx context.Context, d string) ([]mxresolve.Exchange, error) {
		if d == domain {
			return []mxresolve.Exchange{{Host: host, Priority: 10}}, nil
		}
		return nil, nil
	}
	return r
}

func TestOrchestratorScenario1FirstCandidateSucceeds(t *testing.T) {
	// Every dial gets HELO/MAIL accepted; RCPT accepted for the exact
	// first-ranked candidate email, rejected for everything else,
	// including the three catch-all probes.
	dial := func(network, address string, localAddr net.Addr, timeout time.Duration) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			_, _ = server.Write([]byte("220 mx.analyticalengines.com ready\r\n"))
			reader := bufio.NewReader(server)
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
			_, _ = server.Write([]byte("250 Hello\r\n"))
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
			_, _ = server.Write([]byte("250 OK\r\n"))
			rcptLine, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if strings.Contains(rcptLine, "ada.lovelace@analyticalengines.com") {
				_, _ = server.Write([]byte("250 Accepted\r\n"))
			} else {
				_, _ = server.Write([]byte("550 No such user\r\n"))
			}
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
			_, _ = server.Write([]byte("221 Bye\r\n"))
			server.Close()
		}()
		return client, nil
	}

	pool := ippool.NewWithCooldown(fakeAddrs(1), time.Millisecond)
	orch := &Orchestrator{
		Resolver:  newResolverFor("analyticalengines.com", "mx.analyticalengines.com"),
		Pool:      pool,
		Companies: newFakeCompanyRepo(),
		Patterns:  newFakePatternRepo(),
		People:    &fakePersonRepo{},
		CatchAlls: newFakeCatchAllRepo(),
		ProbeConfig: smtpprobe.Config{
			HeloHostname: "verihunt.example",
			Sender:       "probe@verihunt.example",
			IdleTimeout:  time.Second,
			Dial:         dial,
		},
	}

	resp, err := orch.Run(context.Background(), Request{
		FirstName: "Ada", LastName: "Lovelace", Company: "Analytical Engines", ProvidedDomain: "analyticalengines.com",
	})
	assert.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Len(t, resp.VerifiedEmails, 1)
	assert.Equal(t, "ada.lovelace@analyticalengines.com", resp.VerifiedEmails[0].Email)
}

func TestOrchestratorScenario3CatchAllDemotesPositiveToFailure(t *testing.T) {
	// The first-ranked candidate is accepted just like scenario 1, but
	// the post-success catch-all probe accepts two of its three random
	// local-parts, so the positive must be discarded per spec.md §8.3.
	var mu sync.Mutex
	catchAllProbes := 0

	dial := func(network, address string, localAddr net.Addr, timeout time.Duration) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			_, _ = server.Write([]byte("220 mx.analyticalengines.com ready\r\n"))
			reader := bufio.NewReader(server)
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
			_, _ = server.Write([]byte("250 Hello\r\n"))
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
			_, _ = server.Write([]byte("250 OK\r\n"))
			rcptLine, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			switch {
			case strings.Contains(rcptLine, "ada.lovelace@analyticalengines.com"):
				_, _ = server.Write([]byte("250 Accepted\r\n"))
			default:
				mu.Lock()
				catchAllProbes++
				accept := catchAllProbes <= 2
				mu.Unlock()
				if accept {
					_, _ = server.Write([]byte("250 Accepted\r\n"))
				} else {
					_, _ = server.Write([]byte("550 No such user\r\n"))
				}
			}
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
			_, _ = server.Write([]byte("221 Bye\r\n"))
			server.Close()
		}()
		return client, nil
	}

	companies := newFakeCompanyRepo()
	catchAlls := newFakeCatchAllRepo()
	cache := newFakeCatchAllCache()

	orch := &Orchestrator{
		Resolver:  newResolverFor("analyticalengines.com", "mx.analyticalengines.com"),
		Pool:      ippool.NewWithCooldown(fakeAddrs(1), time.Millisecond),
		Companies: companies,
		Patterns:  newFakePatternRepo(),
		People:    &fakePersonRepo{},
		CatchAlls: catchAlls,
		Cache:     cache,
		ProbeConfig: smtpprobe.Config{
			HeloHostname: "verihunt.example",
			Sender:       "probe@verihunt.example",
			IdleTimeout:  time.Second,
			Dial:         dial,
		},
	}

	resp, err := orch.Run(context.Background(), Request{
		FirstName: "Ada", LastName: "Lovelace", Company: "Analytical Engines", ProvidedDomain: "analyticalengines.com",
	})
	assert.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Empty(t, resp.VerifiedEmails)
	assert.NotNil(t, resp.Metadata.IsCatchAll)
	assert.True(t, *resp.Metadata.IsCatchAll)
	assert.True(t, catchAlls.known["analyticalengines.com"])
	assert.True(t, companies.byDomain["analyticalengines.com"].IsCatchAll)
	cachedValue, found := cache.Get("analyticalengines.com")
	assert.True(t, found)
	assert.True(t, cachedValue)
}

func TestOrchestratorScenario2AllCandidatesRejected(t *testing.T) {
	// Every RCPT is rejected, including the post-batch catch-all votes
	// (which never run here since firstPositive stays nil).
	dial := func(network, address string, localAddr net.Addr, timeout time.Duration) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			_, _ = server.Write([]byte("220 mx.analyticalengines.com ready\r\n"))
			reader := bufio.NewReader(server)
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
			_, _ = server.Write([]byte("250 Hello\r\n"))
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
			_, _ = server.Write([]byte("250 OK\r\n"))
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
			_, _ = server.Write([]byte("550 No such user\r\n"))
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
			_, _ = server.Write([]byte("221 Bye\r\n"))
			server.Close()
		}()
		return client, nil
	}

	people := &fakePersonRepo{}
	orch := &Orchestrator{
		Resolver:  newResolverFor("analyticalengines.com", "mx.analyticalengines.com"),
		Pool:      ippool.NewWithCooldown(fakeAddrs(1), time.Millisecond),
		Companies: newFakeCompanyRepo(),
		Patterns:  newFakePatternRepo(),
		People:    people,
		CatchAlls: newFakeCatchAllRepo(),
		ProbeConfig: smtpprobe.Config{
			HeloHostname: "verihunt.example",
			Sender:       "probe@verihunt.example",
			IdleTimeout:  time.Second,
			Dial:         dial,
		},
	}

	resp, err := orch.Run(context.Background(), Request{
		FirstName: "Ada", LastName: "Lovelace", Company: "Analytical Engines", ProvidedDomain: "analyticalengines.com",
	})
	assert.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Nil(t, people.saved.VerifiedEmail)
	assert.Len(t, people.logs, resp.TotalPatternsTested)
}

func TestOrchestratorScenario5KnownCatchAllShortCircuits(t *testing.T) {
	dialCalls := 0
	dial := func(network, address string, localAddr net.Addr, timeout time.Duration) (net.Conn, error) {
		dialCalls++
		t.Fatal("no SMTP connection should be attempted for a known catch-all domain")
		return nil, nil
	}

	catchAlls := newFakeCatchAllRepo()
	catchAlls.known["known-catchall.com"] = true

	orch := &Orchestrator{
		Resolver:  newResolverFor("known-catchall.com", "mx.known-catchall.com"),
		Pool:      ippool.NewWithCooldown(fakeAddrs(1), time.Millisecond),
		Companies: newFakeCompanyRepo(),
		Patterns:  newFakePatternRepo(),
		People:    &fakePersonRepo{},
		CatchAlls: catchAlls,
		ProbeConfig: smtpprobe.Config{
			HeloHostname: "verihunt.example",
			Sender:       "probe@verihunt.example",
			Dial:         dial,
		},
	}

	resp, err := orch.Run(context.Background(), Request{
		FirstName: "Ada", LastName: "Lovelace", Company: "Whatever", ProvidedDomain: "known-catchall.com",
	})
	assert.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "database_lookup", resp.DetectionMethod)
	assert.NotNil(t, resp.Metadata.IsCatchAll)
	assert.True(t, *resp.Metadata.IsCatchAll)
	assert.Zero(t, dialCalls)
}

func TestOrchestratorEmptyMXFailsFast(t *testing.T) {
	orch := &Orchestrator{
		Resolver:  newResolverFor("other-domain.com", "mx.other-domain.com"),
		Pool:      ippool.NewWithCooldown(fakeAddrs(1), time.Millisecond),
		Companies: newFakeCompanyRepo(),
		Patterns:  newFakePatternRepo(),
		People:    &fakePersonRepo{},
		CatchAlls: newFakeCatchAllRepo(),
		ProbeConfig: smtpprobe.Config{
			HeloHostname: "verihunt.example",
			Sender:       "probe@verihunt.example",
		},
	}

	_, err := orch.Run(context.Background(), Request{
		FirstName: "Ada", LastName: "Lovelace", Company: "Nowhere", ProvidedDomain: "nomx.example.com",
	})
	assert.Error(t, err)
}

func fakeAddrs(n int) []net.Addr {
	out := make([]net.Addr, n)
	for i := range out {
		out[i] = fakeNetAddr("127.0.0.1")
	}
	return out
}

type fakeNetAddr string

func (f fakeNetAddr) Network() string { return "tcp" }
func (f fakeNetAddr) String() string  { return string(f) }
