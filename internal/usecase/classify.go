package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"coveragescan/internal/domain"
	"coveragescan/internal/keyword"
	"coveragescan/internal/ports"
)

const (
	autoApproveScore = 80
	rejectBelowScore = 50
)

// ClassifyReport is the structured summary of one classifier invocation.
type ClassifyReport struct {
	Processed     int      `json:"processed"`
	AutoApproved  int      `json:"auto_approved"`
	Rejected      int      `json:"rejected"`
	PendingReview int      `json:"pending_review"`
	Failed        int      `json:"failed"`
	Errors        []string `json:"errors,omitempty"`
	Skipped       string   `json:"skipped,omitempty"`
}

func (r *ClassifyReport) addError(context string, err error) {
	if len(r.Errors) >= maxReportErrors {
		return
	}
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", context, err))
}

// NextStatus drives the approval state machine from a fresh relevance score.
// Human decisions are terminal; a later classifier pass never reverses them.
func NextStatus(current domain.ApprovalStatus, score int) domain.ApprovalStatus {
	if current == domain.StatusManuallyApproved || current == domain.StatusRejected {
		return current
	}
	switch {
	case score >= autoApproveScore:
		return domain.StatusAutoApproved
	case score < rejectBelowScore:
		return domain.StatusRejected
	default:
		return domain.StatusPendingReview
	}
}

// ClassifyDeps wires the classifier job.
type ClassifyDeps struct {
	Coverage   ports.CoverageRepository
	Keywords   ports.KeywordRepository
	Classifier ports.Classifier
	BatchSize  int
	Logger     *slog.Logger
}

// ClassifyJob scores pending items in bounded batches and applies the
// approval state machine.
type ClassifyJob struct {
	coverage   ports.CoverageRepository
	keywords   ports.KeywordRepository
	classifier ports.Classifier
	batchSize  int
	logger     *slog.Logger
}

// NewClassifyJob constructs the downstream scoring job.
func NewClassifyJob(deps ClassifyDeps) *ClassifyJob {
	if deps.BatchSize <= 0 {
		deps.BatchSize = 25
	}
	return &ClassifyJob{
		coverage:   deps.Coverage,
		keywords:   deps.Keywords,
		classifier: deps.Classifier,
		batchSize:  deps.BatchSize,
		logger:     deps.Logger,
	}
}

// Run classifies one batch of unscored items. Per-item failures are reported
// and skipped; only a store failure aborts the invocation.
func (j *ClassifyJob) Run(ctx context.Context) (ClassifyReport, error) {
	var report ClassifyReport

	if j.classifier == nil {
		report.Skipped = "no classifier credentials configured"
		return report, nil
	}

	items, err := j.coverage.UnscoredItems(ctx, j.batchSize)
	if err != nil {
		return report, fmt.Errorf("load unscored items: %w", err)
	}

	keywordCache := map[int64][]string{}

	for _, item := range items {
		terms, err := j.clientKeywords(ctx, item.ClientID, keywordCache)
		if err != nil {
			return report, err
		}

		result, err := j.classifier.Classify(ctx, buildClassifyRequest(item, terms))
		if err != nil {
			report.Failed++
			report.addError(item.URL, err)
			continue
		}

		status := NextStatus(item.Status, result.RelevanceScore)

		// The type set at ingestion wins unless it is still the source-kind
		// default; manual or heuristic reclassification is preserved.
		finalType := item.CoverageType
		if finalType == item.SourceKind.DefaultType() {
			finalType = result.SuggestedType
		}

		if err := j.coverage.ApplyClassification(ctx, item.ID, result.RelevanceScore,
			result.Reasoning, finalType, result.Sentiment, status); err != nil {
			report.Failed++
			report.addError(item.URL, err)
			continue
		}

		report.Processed++
		switch status {
		case domain.StatusAutoApproved:
			report.AutoApproved++
		case domain.StatusRejected:
			report.Rejected++
		default:
			report.PendingReview++
		}

		if j.logger != nil {
			j.logger.Debug("item classified", "url", item.URL, "score", result.RelevanceScore, "status", status)
		}
	}

	return report, nil
}

func (j *ClassifyJob) clientKeywords(ctx context.Context, clientID int64, cache map[int64][]string) ([]string, error) {
	if terms, ok := cache[clientID]; ok {
		return terms, nil
	}

	rules, err := j.keywords.RulesForClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("load rules for client %d: %w", clientID, err)
	}

	byGame, clientWide := keyword.BuildRuleSets(rules)
	terms := append([]string{}, clientWide.Whitelist...)
	for _, set := range byGame {
		terms = append(terms, set.Whitelist...)
	}

	cache[clientID] = terms
	return terms, nil
}

func buildClassifyRequest(item domain.CoverageItem, terms []string) ports.ClassifyRequest {
	req := ports.ClassifyRequest{
		Keywords:        terms,
		GameDescription: item.Metadata["game_name"],
		Title:           item.Title,
		URL:             item.URL,
		OutletName:      item.Metadata["outlet_name"],
		Territory:       item.Territory,
	}
	for _, key := range []string{"views", "likes", "comments", "reposts", "replies", "author"} {
		if v, ok := item.Metadata[key]; ok && v != "" {
			req.Quotes = append(req.Quotes, key+": "+v)
		}
	}
	return req
}
