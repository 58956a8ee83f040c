// Package aggregate drives the per-discovery pipeline: source selection,
// logo normalization, PI retrieval and service accumulation.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dabtools/epgdc/internal/assemble"
	"github.com/dabtools/epgdc/internal/fetch"
	"github.com/dabtools/epgdc/internal/log"
	"github.com/dabtools/epgdc/internal/logo"
	"github.com/dabtools/epgdc/internal/radiodns"
	"github.com/dabtools/epgdc/internal/scope"
	"github.com/dabtools/epgdc/internal/spi"
)

const (
	siPath   = "/radiodns/spi/3.1/SI.xml"
	piPathFm = "/radiodns/spi/3.1/id/%s.%04x.%04x.%x/%s_PI.xml"
)

// Config holds the aggregation parameters.
type Config struct {
	// Days is how many calendar days of PI to fetch, starting today.
	Days int
	// ECC/EID identify the target multiplex; only its bearers are
	// published.
	ECC uint8
	EID uint16
	// Now is injectable for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

// Result carries the ordered objects and the consolidated service list.
type Result struct {
	Objects  []assemble.Object
	Services []spi.Service
}

// Aggregator runs the assembly pipeline over discovery responses.
type Aggregator struct {
	cfg     Config
	fetcher *fetch.Fetcher
	logos   *logo.Normalizer
}

// New returns an aggregator using the given fetcher for SI, PI and logo
// retrieval.
func New(cfg Config, fetcher *fetch.Fetcher) *Aggregator {
	if cfg.Days <= 0 {
		cfg.Days = 2
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Aggregator{
		cfg:     cfg,
		fetcher: fetcher,
		logos:   logo.New(fetcher),
	}
}

// Run processes every discovery response in order. Per-source and per-day
// failures are recovered locally and never abort sibling work.
func (a *Aggregator) Run(ctx context.Context, discoveries []radiodns.Discovery) *Result {
	logger := log.WithComponentFromContext(ctx, "aggregate")
	result := &Result{}

	for _, d := range discoveries {
		a.runDiscovery(ctx, logger, d, result)
	}

	logger.Info().
		Str("event", "aggregate.complete").
		Int("services", len(result.Services)).
		Int("objects", len(result.Objects)).
		Msg("aggregation finished")
	return result
}

// runDiscovery walks the ranked candidate servers for one provider.
// Policy: first success wins. The first server whose SI yields at least
// one bearer-matching service supplies this provider's services; the
// remaining candidates are not consulted, so one provider can never
// contribute duplicate service entries.
func (a *Aggregator) runDiscovery(ctx context.Context, logger zerolog.Logger, d radiodns.Discovery, result *Result) {
	for _, server := range radiodns.RankServers(d.Servers) {
		base := fetch.BaseURL(server.Target, server.Port, d.Secured)
		siURL := base + siPath

		services, outcome, err := a.fetcher.ServiceInformation(ctx, siURL, d.Bearers)
		switch outcome {
		case fetch.NotFound:
			logger.Info().
				Str("event", "si.not_found").
				Str("url", siURL).
				Msg("SI not published on candidate, trying next")
			continue
		case fetch.Failed:
			ev := logger.Warn()
			if errors.Is(err, fetch.ErrAuthorization) {
				ev = ev.Str("class", "authorization")
			} else if errors.Is(err, fetch.ErrMalformed) {
				ev = ev.Str("class", "malformed")
			} else {
				ev = ev.Str("class", "transport")
			}
			ev.Err(err).
				Str("event", "si.fetch_failed").
				Str("url", siURL).
				Msg("SI fetch failed, trying next candidate")
			continue
		}
		if len(services) == 0 {
			logger.Info().
				Str("event", "si.no_matching_services").
				Str("url", siURL).
				Str("fqdn", d.FQDN).
				Msg("SI carries no services for requested bearers, trying next source")
			continue
		}

		logger.Info().
			Str("event", "si.loaded").
			Str("url", siURL).
			Str("fqdn", d.FQDN).
			Int("services", len(services)).
			Msg("SI source selected")
		for _, svc := range services {
			a.processService(ctx, logger, svc, base, result)
		}
		return
	}

	logger.Warn().
		Str("event", "discovery.exhausted").
		Str("fqdn", d.FQDN).
		Int("candidates", len(d.Servers)).
		Msg("no candidate server yielded SI for provider")
}

func (a *Aggregator) processService(ctx context.Context, logger zerolog.Logger, svc spi.Service, base string, result *Result) {
	logoObjects, media := a.logos.Normalize(ctx, svc)
	svc.Media = media
	result.Objects = append(result.Objects, logoObjects...)

	// Only this multiplex's carriage is published, even when the
	// service is reachable on other ensembles.
	kept := multiplexBearers(svc.Bearers, a.cfg.ECC, a.cfg.EID)
	if len(kept) == 0 {
		logger.Warn().
			Str("event", "service.no_multiplex_bearer").
			Str("service", svc.Name).
			Msg("service matched discovery but not the target multiplex, dropping")
		return
	}

	for _, bearer := range kept {
		a.fetchProgrammeDays(ctx, logger, bearer, base, result)
	}

	svc.Bearers = kept
	result.Services = append(result.Services, svc)
}

// fetchProgrammeDays runs the fixed-length PI day loop for one bearer.
func (a *Aggregator) fetchProgrammeDays(ctx context.Context, logger zerolog.Logger, bearer spi.Bearer, base string, result *Result) {
	today := a.cfg.Now()
	for day := 0; day < a.cfg.Days; day++ {
		date := today.AddDate(0, 0, day)
		piURL := base + fmt.Sprintf(piPathFm, bearer.GCC(), bearer.EID, bearer.SID, bearer.SCIdS, date.Format("20060102"))

		doc, outcome, err := a.fetcher.ProgrammeInformation(ctx, piURL)
		switch outcome {
		case fetch.NotFound:
			// Not every day has a published schedule.
			logger.Debug().
				Str("event", "pi.not_found").
				Str("url", piURL).
				Msg("no PI for day")
			continue
		case fetch.Failed:
			if errors.Is(err, fetch.ErrMalformed) {
				logger.Warn().
					Err(err).
					Str("event", "pi.malformed").
					Str("url", piURL).
					Msg("PI document malformed, skipping day")
			} else {
				logger.Warn().
					Err(err).
					Str("event", "pi.fetch_failed").
					Str("url", piURL).
					Msg("PI fetch failed, skipping day")
			}
			continue
		}

		obj, err := a.buildProgrammeObject(doc, bearer, date)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("event", "pi.build_failed").
				Str("url", piURL).
				Msg("PI object build failed, skipping day")
			continue
		}
		if obj.ScopeStart == nil || obj.ScopeEnd == nil {
			logger.Warn().
				Str("event", "pi.scope_incomplete").
				Str("bearer", bearer.String()).
				Str("date", date.Format("2006-01-02")).
				Msg("schedule scope could not be fully derived from source data")
		}
		result.Objects = append(result.Objects, obj)
	}
}

// buildProgrammeObject scopes a PI document to one bearer and wraps it as
// a carousel object.
func (a *Aggregator) buildProgrammeObject(doc *spi.ScheduleDocument, bearer spi.Bearer, date time.Time) (assemble.Object, error) {
	merged := scope.ForDocument(doc)
	scope.ApplyToDocument(doc, bearer, merged)
	scope.BackfillShortDescriptions(doc, scope.ShortDescriptionLimit)

	body, err := spi.MarshalPI(doc)
	if err != nil {
		return assemble.Object{}, fmt.Errorf("serialize PI: %w", err)
	}

	name := fmt.Sprintf("%s_%04x_%04x_%x_%s_PI.xml",
		bearer.GCC(), bearer.EID, bearer.SID, bearer.SCIdS, date.Format("20060102"))
	return assemble.Object{
		Name:       name,
		Body:       body,
		Type:       assemble.ContentEPGProgramme,
		ScopeID:    assemble.ScopeIDForBearer(bearer),
		ScopeStart: merged.Start,
		ScopeEnd:   merged.End,
	}, nil
}

func multiplexBearers(bearers []spi.Bearer, ecc uint8, eid uint16) []spi.Bearer {
	var out []spi.Bearer
	for _, b := range bearers {
		if b.MatchesEnsemble(ecc, eid) {
			out = append(out, b)
		}
	}
	return out
}
