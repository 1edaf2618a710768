// Package ippool round-robins a fixed set of local source addresses
// across outbound SMTP probes, enforcing a per-IP cooldown and batching
// candidate emails so early success can stop remaining work without
// wasting an already-dialed connection.
package ippool

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ProbeFunc dials host using a bound local address and returns whatever
// the caller's verdict type is; ippool does not know about SMTP or
// email, only about scheduling calls to it across a pool of addresses.
type ProbeFunc func(ctx context.Context, localAddr net.Addr, email string) Outcome

// Outcome is the minimal shape ippool needs to decide whether to keep
// probing: with EarlyExit enabled, a Valid verdict stops VerifyBatch
// from dispatching any later batch of candidates.
type Outcome struct {
	Email string
	Valid bool
	Value interface{}
}

// entry pairs one source address with its own cooldown limiter so IPs
// throttle independently of each other.
type entry struct {
	addr    net.Addr
	limiter *rate.Limiter
}

// Config controls Pool behavior beyond the address list itself.
type Config struct {
	// Cooldown is the minimum spacing between two dials from the same
	// source address. Zero selects the spec.md §4.4 default of 500ms.
	Cooldown time.Duration
	// EarlyExit stops dispatching further batches once a batch already
	// in flight produces a Valid outcome. Per spec.md §9, this used to
	// be a hard-coded, unconditional branch in the source; it is now a
	// real setting. New and NewWithCooldown enable it; NewWithConfig
	// uses the value given, so the zero Config leaves it off. main.go
	// reads it from VERIFY_EARLY_EXIT, which defaults to true and can
	// disable it (e.g. to always exhaust every candidate for auditing).
	EarlyExit bool
}

// Pool round-robins over a fixed set of local addresses, each rate
// limited to one dial per cooldown window (§4.4: 500ms between uses of
// the same source IP).
type Pool struct {
	mu        sync.Mutex
	entries   []entry
	next      int
	cooldown  time.Duration
	earlyExit bool
}

// New builds a Pool from addrs (order is the round-robin order) with a
// 500ms per-IP cooldown and early-exit enabled, the defaults spec.md
// §4.4 and §9 fix.
func New(addrs []net.Addr) *Pool {
	return NewWithConfig(addrs, Config{Cooldown: 500 * time.Millisecond, EarlyExit: true})
}

// NewWithCooldown lets tests shrink the cooldown so suites don't sleep.
// Early-exit stays enabled, matching New's default.
func NewWithCooldown(addrs []net.Addr, cooldown time.Duration) *Pool {
	return NewWithConfig(addrs, Config{Cooldown: cooldown, EarlyExit: true})
}

// NewWithConfig builds a Pool with full control over cooldown and
// early-exit, the constructor main.go uses to wire VERIFY_EARLY_EXIT.
func NewWithConfig(addrs []net.Addr, cfg Config) *Pool {
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = 500 * time.Millisecond
	}
	entries := make([]entry, len(addrs))
	for i, a := range addrs {
		// A rate.Limiter with burst 1 and a period-derived rate gives
		// exactly "at most one permit per cooldown", the same guarantee
		// a raw last-used timestamp map would need to reimplement.
		limiter := rate.NewLimiter(rate.Every(cooldown), 1)
		entries[i] = entry{addr: a, limiter: limiter}
	}
	return &Pool{entries: entries, cooldown: cooldown, earlyExit: cfg.EarlyExit}
}

// Len reports the pool width, which is also the batch size used by
// VerifyBatch.
func (p *Pool) Len() int {
	return len(p.entries)
}

// Next hands out the next round-robin address for a single, standalone
// probe (the catch-all detector's three votes), advancing the same
// cursor VerifyBatch's internal indexing is independent of.
func (p *Pool) Next(ctx context.Context) (net.Addr, error) {
	p.mu.Lock()
	idx := p.next
	p.next = (p.next + 1) % len(p.entries)
	p.mu.Unlock()
	return p.acquire(ctx, idx)
}

// acquire returns the address at index (modulo the pool width), blocking
// until its cooldown limiter admits another use. Callers choose the
// index; acquire does not move the round-robin cursor.
func (p *Pool) acquire(ctx context.Context, index int) (net.Addr, error) {
	p.mu.Lock()
	e := p.entries[index%len(p.entries)]
	p.mu.Unlock()

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.addr, nil
}

// VerifyBatch probes candidates in pool-width-sized batches. Within a
// batch every candidate is dialed concurrently, one per pool slot; the
// batch's results are collected before the next batch starts, and if
// the pool's EarlyExit is enabled a Valid outcome anywhere in a
// finished batch stops further batches from being dispatched.
// Early-exit therefore only ever applies across batches, never inside
// one already in flight, matching spec.md §4.4. With EarlyExit
// disabled every candidate is probed regardless of earlier successes.
func (p *Pool) VerifyBatch(ctx context.Context, candidates []string, probe ProbeFunc) []Outcome {
	width := p.Len()
	if width == 0 {
		return nil
	}

	var results []Outcome
	for start := 0; start < len(candidates); start += width {
		end := start + width
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		batchResults := make([]Outcome, len(batch))
		var wg sync.WaitGroup
		for i, email := range batch {
			wg.Add(1)
			go func(i int, email string) {
				defer wg.Done()
				addr, err := p.acquire(ctx, start+i)
				if err != nil {
					batchResults[i] = Outcome{Email: email}
					return
				}
				batchResults[i] = probe(ctx, addr, email)
			}(i, email)
		}
		wg.Wait()

		results = append(results, batchResults...)
		if !p.earlyExit {
			continue
		}
		for _, r := range batchResults {
			if r.Valid {
				return results
			}
		}
	}
	return results
}
