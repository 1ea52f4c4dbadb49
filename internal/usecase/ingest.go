package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"coveragescan/internal/adapter"
	"coveragescan/internal/domain"
	"coveragescan/internal/keyword"
	"coveragescan/internal/outlet"
	"coveragescan/internal/ports"
	"coveragescan/internal/urlnorm"
)

const maxReportErrors = 20

// RunReport is the structured summary returned by one scan invocation.
type RunReport struct {
	SourcesScanned int      `json:"sources_scanned"`
	SourcesFailed  int      `json:"sources_failed"`
	SourcesSkipped int      `json:"sources_deferred"`
	ItemsFound     int      `json:"items_found"`
	ItemsMatched   int      `json:"items_matched"`
	ItemsInserted  int      `json:"items_inserted"`
	Duplicates     int      `json:"duplicates"`
	Errors         []string `json:"errors,omitempty"`
	Skipped        string   `json:"skipped,omitempty"`
}

func (r *RunReport) addError(context string, err error) {
	if len(r.Errors) >= maxReportErrors {
		return
	}
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", context, err))
}

// IngestDeps wires all driven adapters into the ingestion orchestrator.
type IngestDeps struct {
	Registry  *adapter.Registry
	Scheduler *Scheduler
	Coverage  ports.CoverageRepository
	Keywords  ports.KeywordRepository
	Resolver  *outlet.Resolver
	Deadline  time.Duration
	Margin    time.Duration
	Logger    *slog.Logger
}

// Ingestor runs one scheduled scan: fetch, normalize, dedup, score, resolve,
// persist. All work is sequential within an invocation.
type Ingestor struct {
	registry  *adapter.Registry
	scheduler *Scheduler
	coverage  ports.CoverageRepository
	keywords  ports.KeywordRepository
	resolver  *outlet.Resolver
	deadline  time.Duration
	margin    time.Duration
	logger    *slog.Logger
}

// NewIngestor constructs the orchestration component.
func NewIngestor(deps IngestDeps) *Ingestor {
	if deps.Deadline <= 0 {
		deps.Deadline = 4 * time.Minute
	}
	if deps.Margin <= 0 {
		deps.Margin = 20 * time.Second
	}
	return &Ingestor{
		registry:  deps.Registry,
		scheduler: deps.Scheduler,
		coverage:  deps.Coverage,
		keywords:  deps.Keywords,
		resolver:  deps.Resolver,
		deadline:  deps.Deadline,
		margin:    deps.Margin,
		logger:    deps.Logger,
	}
}

// clientState caches per-client data for one invocation: the dedup set is
// loaded once per run, not per item, and extended as candidates are accepted.
type clientState struct {
	dedup      *urlnorm.DedupSet
	byGame     map[int64]keyword.RuleSet
	clientWide keyword.RuleSet
}

// Run processes every due source of the given kinds within the wall-clock
// budget. Per-source and per-item failures are absorbed into the report;
// only a store-level failure aborts the invocation.
func (in *Ingestor) Run(ctx context.Context, kinds []string, now time.Time) (RunReport, error) {
	var report RunReport

	due, err := in.scheduler.DueSources(ctx, kinds, now)
	if err != nil {
		return report, err
	}

	start := time.Now()
	clients := map[int64]*clientState{}

	for i, src := range due {
		// Cooperative budget check between sources: starting a source we
		// cannot finish would record it as failed for no reason.
		if time.Since(start) > in.deadline-in.margin {
			report.SourcesSkipped = len(due) - i
			if in.logger != nil {
				in.logger.Info("deadline close, deferring remaining sources", "deferred", report.SourcesSkipped)
			}
			break
		}

		vendor, err := in.registry.Resolve(adapterFor(src.Kind))
		if err != nil {
			report.SourcesFailed++
			report.addError(src.Name, err)
			continue
		}

		candidates, fetchErr := vendor.Fetch(ctx, src)
		switch {
		case errors.Is(fetchErr, domain.ErrNotConfigured):
			// Expected operational state, not a bug: report the whole stage
			// as skipped without touching source bookkeeping.
			report.Skipped = fmt.Sprintf("adapter %s has no credentials configured", adapterFor(src.Kind))
			return report, nil
		case errors.Is(fetchErr, domain.ErrQuotaExhausted):
			// Partial results are still usable; stop admitting more sources
			// for this stage and leave the rest for tomorrow's quota.
			report.SourcesScanned++
			if err := in.processSource(ctx, src, candidates, clients, &report); err != nil {
				return report, err
			}
			if err := in.scheduler.RecordSuccess(ctx, src, time.Now(), "quota exhausted after partial fetch"); err != nil {
				return report, err
			}
			report.SourcesSkipped += len(due) - i - 1
			return report, nil
		case fetchErr != nil:
			report.SourcesFailed++
			report.addError(src.Name, fetchErr)
			if err := in.scheduler.RecordFailure(ctx, src, time.Now(), fetchErr.Error()); err != nil {
				return report, err
			}
			continue
		}

		report.SourcesScanned++
		if err := in.processSource(ctx, src, candidates, clients, &report); err != nil {
			return report, err
		}

		note := fmt.Sprintf("found %d candidates", len(candidates))
		if err := in.scheduler.RecordSuccess(ctx, src, time.Now(), note); err != nil {
			return report, err
		}
	}

	return report, nil
}

// processSource filters and persists one source's candidates. Returned errors
// are store-level and fatal for the invocation.
func (in *Ingestor) processSource(ctx context.Context, src domain.Source, candidates []domain.Candidate, clients map[int64]*clientState, report *RunReport) error {
	report.ItemsFound += len(candidates)

	state, err := in.clientState(ctx, src.ClientID, clients)
	if err != nil {
		return err
	}

	var batch []domain.CoverageItem
	for _, cand := range candidates {
		item, verdict, itemErr := in.buildItem(ctx, src, cand, state)
		switch verdict {
		case verdictAccepted:
			report.ItemsMatched++
			batch = append(batch, *item)
		case verdictDuplicate:
			report.Duplicates++
		case verdictUnmatched:
			// quietly dropped; not coverage for this client
		case verdictFailed:
			report.addError(cand.URL, itemErr)
		}
	}

	if len(batch) == 0 {
		return nil
	}

	inserted, err := in.coverage.InsertItems(ctx, batch)
	if err != nil {
		return fmt.Errorf("insert items for source %s: %w", src.Name, err)
	}
	report.ItemsInserted += inserted
	// Upsert-on-conflict silently drops rows a concurrent invocation already
	// wrote; count them as duplicates rather than losses.
	report.Duplicates += len(batch) - inserted

	return nil
}

type itemVerdict int

const (
	verdictAccepted itemVerdict = iota
	verdictDuplicate
	verdictUnmatched
	verdictFailed
)

func (in *Ingestor) buildItem(ctx context.Context, src domain.Source, cand domain.Candidate, state *clientState) (*domain.CoverageItem, itemVerdict, error) {
	canonical, err := urlnorm.Normalize(cand.URL)
	if err != nil {
		return nil, verdictFailed, err
	}

	if state.dedup.Seen(canonical) {
		return nil, verdictDuplicate, nil
	}

	match := in.scoreCandidate(src, cand, state)
	if !match.Matched {
		return nil, verdictUnmatched, nil
	}

	outletID, err := in.resolver.Resolve(ctx, cand)
	if err != nil {
		return nil, verdictFailed, err
	}

	state.dedup.Add(canonical)

	kind := sourceKindFor(src.Kind)
	meta := cand.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	if len(match.MatchedTerms) > 0 {
		meta["matched_keywords"] = strings.Join(match.MatchedTerms, ", ")
	}
	meta["keyword_score"] = fmt.Sprintf("%d", match.Score)
	if src.GameName != "" {
		meta["game_name"] = src.GameName
	}

	return &domain.CoverageItem{
		ClientID:     src.ClientID,
		GameID:       src.GameID,
		OutletID:     outletID,
		URL:          canonical,
		Title:        cand.Title,
		PublishedAt:  cand.PublishedAt,
		SourceKind:   kind,
		CoverageType: kind.DefaultType(),
		Audience:     cand.AudienceHint,
		Status:       domain.StatusPendingReview,
		Metadata:     meta,
	}, verdictAccepted, nil
}

// scoreCandidate tries game-scoped rules first and falls back to the
// client-wide set when they produce no match. Candidates bound to a tracked
// game get the game's name as an implicit whitelist term.
func (in *Ingestor) scoreCandidate(src domain.Source, cand domain.Candidate, state *clientState) keyword.Match {
	if src.GameID != nil {
		if gameSet, ok := state.byGame[*src.GameID]; ok {
			match := keyword.Score(cand.Title, cand.Description, gameSet.WithImplicitTerm(src.GameName))
			if match.Matched {
				return match
			}
		}
	}

	set := state.clientWide
	if src.GameID != nil {
		set = set.WithImplicitTerm(src.GameName)
	}
	return keyword.Score(cand.Title, cand.Description, set)
}

func (in *Ingestor) clientState(ctx context.Context, clientID int64, clients map[int64]*clientState) (*clientState, error) {
	if state, ok := clients[clientID]; ok {
		return state, nil
	}

	known, err := in.coverage.KnownURLs(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("load known urls for client %d: %w", clientID, err)
	}

	rules, err := in.keywords.RulesForClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("load rules for client %d: %w", clientID, err)
	}

	byGame, clientWide := keyword.BuildRuleSets(rules)
	state := &clientState{
		dedup:      urlnorm.NewDedupSet(known),
		byGame:     byGame,
		clientWide: clientWide,
	}
	clients[clientID] = state
	return state, nil
}

// adapterFor maps a configured source kind to its registered adapter.
func adapterFor(kind string) string {
	switch kind {
	case "social_search", "social_handles":
		return "social"
	default:
		return kind
	}
}

func sourceKindFor(kind string) domain.SourceKind {
	switch kind {
	case "youtube":
		return domain.SourceVideo
	case "social_search", "social_handles":
		return domain.SourceSocial
	default:
		return domain.SourceFeed
	}
}
