package ports

import (
	"context"
	"time"

	"coveragescan/internal/domain"
)

// SourceRepository reads and book-keeps configured scan sources.
type SourceRepository interface {
	ActiveSources(ctx context.Context, kinds []string) ([]domain.Source, error)
	RecordRun(ctx context.Context, sourceID int64, at time.Time, status, note string, failureCount int, active bool) error
}

// CoverageRepository persists discovered items for dedup and review.
type CoverageRepository interface {
	KnownURLs(ctx context.Context, clientID int64) ([]string, error)
	InsertItems(ctx context.Context, items []domain.CoverageItem) (inserted int, err error)
	UnscoredItems(ctx context.Context, limit int) ([]domain.CoverageItem, error)
	ApplyClassification(ctx context.Context, itemID int64, score int, reasoning string, coverageType domain.CoverageType, sentiment domain.Sentiment, status domain.ApprovalStatus) error
}

// OutletRepository resolves and lazily creates outlets.
type OutletRepository interface {
	FindByIdentity(ctx context.Context, identityKey string) (*domain.Outlet, error)
	Create(ctx context.Context, outlet domain.Outlet) (int64, error)
	UpdateAudience(ctx context.Context, outletID, audience int64, tier domain.Tier) error
}

// KeywordRepository loads per-client matching rules.
type KeywordRepository interface {
	RulesForClient(ctx context.Context, clientID int64) ([]domain.KeywordRule, error)
}

// QuotaStore tracks daily API usage for quota-limited vendors.
type QuotaStore interface {
	QuotaUsed(ctx context.Context, provider string, day time.Time) (int, error)
	AddQuotaUsed(ctx context.Context, provider string, day time.Time, units int) error
}

// Classifier scores an item's relevance via an external model.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (ClassifyResult, error)
}

// ClassifyRequest is the fixed-shape payload sent to the scoring model.
type ClassifyRequest struct {
	Keywords        []string
	GameDescription string
	Title           string
	URL             string
	OutletName      string
	Territory       string
	Quotes          []string
}

// ClassifyResult is the fixed-shape verdict expected back from the model.
type ClassifyResult struct {
	RelevanceScore int
	Reasoning      string
	SuggestedType  domain.CoverageType
	Sentiment      domain.Sentiment
}
