// Package verify implements the top-level request flow: resolve a
// domain, short-circuit known catch-alls, rank candidate addresses,
// probe them across the IP pool, guard the first success against a
// catch-all false positive, learn from what worked, and persist the
// person. It is the generalisation of the teacher's
// controllers/verification_controller.go
// enhancedProcessBulkVerification from "verify N given emails" to
// "probe N generated candidates for one person, stop at first
// success".
package verify

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"verihunt/internal/catchall"
	"verihunt/internal/ippool"
	"verihunt/internal/mxresolve"
	"verihunt/internal/pattern"
	"verihunt/internal/repository"
	"verihunt/internal/smtpprobe"
	"verihunt/models"
	"verihunt/verrors"
)

// Request is one incoming verification job, matching the HTTP layer's
// POST /verify body.
type Request struct {
	FirstName            string
	LastName             string
	Company              string
	ProvidedDomain       string
	CurrentPosition      string
	Phone                string
	EducationalInstitute string
	PreviousCompanies    string
	Qualifications       string
}

// VerifiedEmail is one confirmed address and the source IP it was
// confirmed from.
type VerifiedEmail struct {
	Email    string `json:"email"`
	SourceIP string `json:"sourceIp"`
}

// Metadata carries the request's resolved identity and, once known,
// its catch-all status.
type Metadata struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Company    string `json:"company"`
	Domain     string `json:"domain"`
	IsCatchAll *bool  `json:"isCatchAll,omitempty"`
}

// Response is the top-level result of one orchestrator run.
type Response struct {
	Success                   bool            `json:"success"`
	VerifiedEmails            []VerifiedEmail `json:"verifiedEmails"`
	TotalPatternsTested       int             `json:"totalPatternsTested"`
	PatternsTestedBeforeValid int             `json:"patternsTestedBeforeValid"`
	Metadata                  Metadata        `json:"metadata"`
	TimeTaken                 time.Duration   `json:"timeTaken"`
	DetectionMethod           string          `json:"detectionMethod,omitempty"`
	RequestID                 string          `json:"requestId"`
}

// EventSink receives one call per state the orchestrator passes
// through, letting main.go route these into the five log categories
// without this package depending on the logging package.
type EventSink interface {
	Event(requestID, category, message string, fields map[string]interface{})
}

type noopSink struct{}

func (noopSink) Event(string, string, string, map[string]interface{}) {}

// CatchAllCache fronts CatchAllDomainRepository.Find with a fast,
// possibly shared, cache so a hot known-catch-all domain doesn't cost
// a database round trip on every request. main.go wires this to
// middleware.CatchAllCache when Redis is enabled; nil disables it.
type CatchAllCache interface {
	Get(domain string) (isCatchAll bool, found bool)
	Set(domain string, isCatchAll bool)
}

// Orchestrator wires the seven components together. Every field is a
// constructor-injected dependency so tests can substitute fakes for
// the resolver, pool and repositories without a network or database.
type Orchestrator struct {
	Resolver    *mxresolve.Resolver
	Pool        *ippool.Pool
	Companies   repository.CompanyRepository
	Patterns    repository.PatternRepository
	People      repository.PersonRepository
	CatchAlls   repository.CatchAllDomainRepository
	ProbeConfig smtpprobe.Config
	Sink        EventSink
	WhoisLookup func(domain string) (string, error)
	Cache       CatchAllCache
}

// catchAllLookupAdapter satisfies catchall.Lookup over a
// repository.CatchAllDomainRepository without exposing the repository
// package to internal/catchall.
type catchAllLookupAdapter struct {
	repo repository.CatchAllDomainRepository
}

func (a catchAllLookupAdapter) IsKnownCatchAll(ctx context.Context, domain string) (bool, error) {
	return a.repo.IsKnownCatchAll(ctx, domain)
}

func (o *Orchestrator) sink() EventSink {
	if o.Sink == nil {
		return noopSink{}
	}
	return o.Sink
}

// Run executes the full ten-step flow of the orchestrator for one
// request.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	requestID := uuid.NewString()

	resp := Response{
		RequestID: requestID,
		Metadata: Metadata{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Company:   req.Company,
		},
	}

	// Step 1: domain resolution.
	domain, err := o.resolveDomain(ctx, req)
	if err != nil {
		resp.TimeTaken = time.Since(start)
		return resp, err
	}
	resp.Metadata.Domain = domain
	o.sink().Event(requestID, "general", "domain resolved", map[string]interface{}{"domain": domain})

	// Step 2: catch-all pre-check, cache first then repository.
	if known := o.isKnownCatchAll(ctx, domain); known {
		isCatchAll := true
		resp.Metadata.IsCatchAll = &isCatchAll
		resp.DetectionMethod = "database_lookup"
		resp.TimeTaken = time.Since(start)
		o.sink().Event(requestID, "catchall", "known catch-all, no probe attempted", map[string]interface{}{"domain": domain})
		return resp, nil
	}

	// Step 3: company upsert.
	whois := ""
	if o.WhoisLookup != nil {
		if text, werr := o.WhoisLookup(domain); werr == nil {
			whois = text
		} else {
			o.sink().Event(requestID, "general", "whois lookup failed", map[string]interface{}{"domain": domain, "error": werr.Error()})
		}
	}
	company, err := o.Companies.Upsert(ctx, req.Company, domain, whois)
	if err != nil {
		resp.TimeTaken = time.Since(start)
		return resp, verrors.Wrap(verrors.VerificationError, err)
	}

	// Step 4: MX lookup.
	exchanges, err := o.Resolver.Resolve(ctx, domain)
	if err != nil {
		resp.TimeTaken = time.Since(start)
		return resp, err
	}
	primaryHost := exchanges[0].Host

	// Step 5: rank candidates.
	learned := make([]pattern.CompanyPattern, 0, len(company.VerifiedPatterns))
	for _, p := range company.VerifiedPatterns {
		learned = append(learned, pattern.CompanyPattern{
			Template:     pattern.Template(p.Pattern),
			UsageCount:   p.UsageCount,
			LastVerified: p.LastVerified,
		})
	}
	candidates := pattern.Rank(learned, req.FirstName, req.LastName, domain)
	resp.TotalPatternsTested = len(candidates)

	emails := make([]string, len(candidates))
	byEmail := make(map[string]pattern.Candidate, len(candidates))
	for i, c := range candidates {
		emails[i] = c.Email
		byEmail[c.Email] = c
	}

	// Step 6: batch probe.
	probeFn := o.buildProbeFunc(requestID, primaryHost)
	outcomes := o.Pool.VerifyBatch(ctx, emails, probeFn)

	var firstPositive *smtpprobe.Result
	logs := make([]models.ProbeLog, 0, len(outcomes))
	for _, outcome := range outcomes {
		result, _ := outcome.Value.(smtpprobe.Result)
		logs = append(logs, models.ProbeLog{
			Email:    outcome.Email,
			Valid:    outcome.Valid,
			Reason:   string(result.Reason),
			Details:  result.Details,
			SourceIP: result.SourceIP,
			TestedAt: time.Now(),
		})
		if outcome.Valid && firstPositive == nil {
			r := result
			firstPositive = &r
			resp.PatternsTestedBeforeValid = len(logs)
		}
	}
	if firstPositive == nil {
		resp.PatternsTestedBeforeValid = len(logs)
	}

	// Step 7: post-success catch-all guard.
	if firstPositive != nil {
		isCatchAll, cerr := o.runCatchAllDetection(ctx, requestID, domain, primaryHost)
		if cerr == nil && isCatchAll {
			flag := true
			resp.Metadata.IsCatchAll = &flag
			_ = o.CatchAlls.Upsert(ctx, domain)
			_ = o.Companies.SetCatchAll(ctx, domain, true)
			if o.Cache != nil {
				o.Cache.Set(domain, true)
			}
			firstPositive = nil // discard the positive; it can't be trusted
			o.sink().Event(requestID, "catchall", "discarding positive: domain is catch-all", map[string]interface{}{"domain": domain})
		}
	}

	// Step 8: learn from every genuine positive in the batch.
	if firstPositive != nil {
		for _, l := range logs {
			if !l.Valid {
				continue
			}
			if c, ok := byEmail[l.Email]; ok {
				_ = o.Companies.BumpPattern(ctx, company.ID, string(c.Template))
				_ = o.Patterns.BumpGlobal(ctx, string(c.Template))
			}
		}
	}

	// Step 9: persist person.
	person, _ := o.People.FindNatural(ctx, req.FirstName, req.LastName, req.Company)
	if person == nil {
		person = &models.Person{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Company:   req.Company,
		}
	}
	person.Domain = domain
	person.CurrentPosition = req.CurrentPosition
	person.Phone = req.Phone
	person.EducationalInstitute = req.EducationalInstitute
	person.PreviousCompanies = req.PreviousCompanies
	person.Qualifications = req.Qualifications
	if firstPositive != nil {
		email := firstPositive.Email
		now := time.Now()
		person.VerifiedEmail = &email
		person.EmailVerifiedAt = &now
	}
	_ = o.People.UpsertWithHistory(ctx, person, logs)

	// Step 10: respond.
	if firstPositive != nil {
		resp.Success = true
		resp.VerifiedEmails = []VerifiedEmail{{Email: firstPositive.Email, SourceIP: firstPositive.SourceIP}}
	}
	resp.TimeTaken = time.Since(start)
	return resp, nil
}

// isKnownCatchAll checks o.Cache before falling back to the
// repository, populating the cache on a repository hit so the next
// lookup for the same domain skips the database entirely.
func (o *Orchestrator) isKnownCatchAll(ctx context.Context, domain string) bool {
	if o.Cache != nil {
		if isCatchAll, found := o.Cache.Get(domain); found {
			return isCatchAll
		}
	}
	known, _ := o.CatchAlls.IsKnownCatchAll(ctx, domain)
	if known && o.Cache != nil {
		o.Cache.Set(domain, true)
	}
	return known
}

func (o *Orchestrator) resolveDomain(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.ProvidedDomain) != "" {
		return strings.ToLower(strings.TrimSpace(req.ProvidedDomain)), nil
	}
	if existing, _ := o.Companies.FindByNameOrDomain(ctx, req.Company, ""); existing != nil && existing.Domain != "" {
		return existing.Domain, nil
	}
	domain, _, err := o.Resolver.GuessDomain(ctx, req.Company)
	if err != nil {
		return "", err
	}
	return domain, nil
}

// buildProbeFunc adapts smtpprobe.Probe to ippool.ProbeFunc, binding
// each dial to the addr the pool hands it.
func (o *Orchestrator) buildProbeFunc(requestID, host string) ippool.ProbeFunc {
	return func(ctx context.Context, localAddr net.Addr, email string) ippool.Outcome {
		cfg := o.ProbeConfig
		cfg.LocalAddr = localAddr
		cfg.OnTransition = func(from, to string) {
			o.sink().Event(requestID, "general", "probe state transition", map[string]interface{}{
				"email": email, "from": from, "to": to,
			})
		}
		result := smtpprobe.Probe(cfg, host, email)
		result.Email = email
		if result.Blocked {
			o.sink().Event(requestID, "blocked_ips", "block signal detected", map[string]interface{}{
				"sourceIp": result.SourceIP, "email": email,
			})
		}
		category := "general"
		if result.Valid {
			category = "success"
		} else if result.Reason == verrors.ConnectionError || result.Reason == verrors.Timeout {
			category = "error"
		}
		o.sink().Event(requestID, category, "probe completed", map[string]interface{}{
			"email": email, "valid": result.Valid, "reason": string(result.Reason),
		})
		return ippool.Outcome{Email: email, Valid: result.Valid, Value: result}
	}
}

// runCatchAllDetection wires internal/catchall against this
// orchestrator's own repository and prober, using a fresh pool address
// per vote via ippool.Pool.Next.
func (o *Orchestrator) runCatchAllDetection(ctx context.Context, requestID, domain, host string) (bool, error) {
	prober := func(ctx context.Context, domain, localPart string) (bool, error) {
		addr, err := o.Pool.Next(ctx)
		if err != nil {
			return false, err
		}
		cfg := o.ProbeConfig
		cfg.LocalAddr = addr
		cfg.OnTransition = func(from, to string) {
			o.sink().Event(requestID, "general", "catch-all probe state transition", map[string]interface{}{
				"domain": domain, "from": from, "to": to,
			})
		}
		result := smtpprobe.Probe(cfg, host, localPart+"@"+domain)
		return result.Valid, nil
	}
	lookup := catchAllLookupAdapter{repo: o.CatchAlls}
	isCatchAll, err := catchall.Detect(ctx, lookup, prober, domain)
	o.sink().Event(requestID, "catchall", "catch-all detection ran", map[string]interface{}{
		"domain": domain, "isCatchAll": isCatchAll,
	})
	return isCatchAll, err
}
