// Package worker holds background jobs, following the teacher's
// worker/warmup_worker.go shape: a context+ticker select loop owned by
// a small struct constructed with its dependencies.
package worker

import (
	"context"
	"log"
	"time"

	"verihunt/internal/catchall"
	"verihunt/internal/ippool"
	"verihunt/internal/mxresolve"
	"verihunt/internal/repository"
	"verihunt/internal/smtpprobe"
)

// CatchAllWorker periodically re-probes domains whose catch-all
// verdict has gone stale, implementing spec.md §9's note to retain and
// recalibrate `VerificationAttempts` rather than treat a three-probe
// vote as permanent.
type CatchAllWorker struct {
	CatchAlls   repository.CatchAllDomainRepository
	Resolver    *mxresolve.Resolver
	Pool        *ippool.Pool
	ProbeConfig smtpprobe.Config
	Logger      *log.Logger

	// StaleAfter is how old a verdict must be before it is re-checked.
	StaleAfter time.Duration
	// Interval is how often the worker wakes up to look for stale
	// verdicts.
	Interval time.Duration
}

// NewCatchAllWorker builds a CatchAllWorker with the teacher's default
// staleness/interval feel (recheck daily, poll every 30 minutes).
func NewCatchAllWorker(catchAlls repository.CatchAllDomainRepository, resolver *mxresolve.Resolver, pool *ippool.Pool, probeConfig smtpprobe.Config, logger *log.Logger) *CatchAllWorker {
	return &CatchAllWorker{
		CatchAlls:   catchAlls,
		Resolver:    resolver,
		Pool:        pool,
		ProbeConfig: probeConfig,
		Logger:      logger,
		StaleAfter:  24 * time.Hour,
		Interval:    30 * time.Minute,
	}
}

// Start runs the recalibration loop until ctx is cancelled.
func (w *CatchAllWorker) Start(ctx context.Context) {
	time.Sleep(10 * time.Second)
	w.Logger.Println("catch-all recalibration worker started")

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Logger.Println("catch-all recalibration worker shutting down...")
			return
		case <-ticker.C:
			w.recalibrateStale(ctx)
		}
	}
}

func (w *CatchAllWorker) recalibrateStale(ctx context.Context) {
	stale, err := w.CatchAlls.Stale(ctx, w.StaleAfter)
	if err != nil {
		w.Logger.Printf("error fetching stale catch-all domains: %v", err)
		return
	}

	for _, record := range stale {
		w.recalibrateDomain(ctx, record.Domain)
	}
}

func (w *CatchAllWorker) recalibrateDomain(ctx context.Context, domain string) {
	exchanges, err := w.Resolver.Resolve(ctx, domain)
	if err != nil || len(exchanges) == 0 {
		w.Logger.Printf("error resolving MX for %s during recalibration: %v", domain, err)
		return
	}
	host := exchanges[0].Host

	prober := func(ctx context.Context, domain, localPart string) (bool, error) {
		addr, err := w.Pool.Next(ctx)
		if err != nil {
			return false, err
		}
		cfg := w.ProbeConfig
		cfg.LocalAddr = addr
		result := smtpprobe.Probe(cfg, host, localPart+"@"+domain)
		return result.Valid, nil
	}

	isCatchAll, err := catchall.Detect(ctx, nil, prober, domain)
	if err != nil {
		w.Logger.Printf("error recalibrating catch-all domain %s: %v", domain, err)
		return
	}

	if isCatchAll {
		if err := w.CatchAlls.Upsert(ctx, domain); err != nil {
			w.Logger.Printf("error persisting recalibrated verdict for %s: %v", domain, err)
		}
		return
	}
	w.Logger.Printf("domain %s no longer verifies as catch-all on recalibration", domain)
}
