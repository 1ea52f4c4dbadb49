package domain

import (
	"errors"
	"time"
)

// SourceKind tags where a coverage item was discovered.
type SourceKind string

const (
	SourceFeed   SourceKind = "feed"
	SourceVideo  SourceKind = "video"
	SourceSocial SourceKind = "social"
)

// CoverageType classifies what kind of mention an item is.
type CoverageType string

const (
	TypeNews      CoverageType = "news"
	TypeReview    CoverageType = "review"
	TypeVideo     CoverageType = "video"
	TypeMention   CoverageType = "mention"
	TypeInterview CoverageType = "interview"
	TypePreview   CoverageType = "preview"
)

// Sentiment is the classifier's tone verdict for an item.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// ApprovalStatus is the review lifecycle of a coverage item.
type ApprovalStatus string

const (
	StatusPendingReview    ApprovalStatus = "pending_review"
	StatusAutoApproved     ApprovalStatus = "auto_approved"
	StatusManuallyApproved ApprovalStatus = "manually_approved"
	StatusRejected         ApprovalStatus = "rejected"
)

// Tier buckets an outlet by audience size; A is the largest.
type Tier string

const (
	TierA        Tier = "A"
	TierB        Tier = "B"
	TierC        Tier = "C"
	TierD        Tier = "D"
	TierUntiered Tier = "untiered"
)

// Frequency is how often a source should be scanned.
type Frequency string

const (
	FreqHourly  Frequency = "hourly"
	FreqEvery6h Frequency = "every_6h"
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
)

var (
	// ErrNotConfigured signals a vendor stage with no credentials; an expected
	// operational state, reported as a skip rather than a failure.
	ErrNotConfigured = errors.New("vendor credentials not configured")

	// ErrQuotaExhausted stops a quota-limited adapter for the rest of the day.
	ErrQuotaExhausted = errors.New("daily api quota exhausted")
)

// Candidate is a discovered mention before dedup and scoring. Adapters map
// vendor payloads into this shape; nothing vendor-specific passes beyond it.
type Candidate struct {
	URL            string
	Title          string
	Description    string
	PublishedAt    time.Time
	OriginIdentity string // normalized domain, channel key or handle key
	OriginName     string // display name if the vendor supplies one
	AudienceHint   int64  // subscribers/followers; 0 when unknown
	Metadata       map[string]string
}

// CoverageItem is a persisted mention in the review pipeline.
type CoverageItem struct {
	ID             int64
	ClientID       int64
	GameID         *int64
	OutletID       int64
	URL            string
	Title          string
	PublishedAt    time.Time
	SourceKind     SourceKind
	CoverageType   CoverageType
	Audience       int64
	Territory      string
	RelevanceScore *int
	Reasoning      string
	Sentiment      *Sentiment
	Status         ApprovalStatus
	Metadata       map[string]string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Decided reports whether a human already settled the item; the classifier
// never overrides these states.
func (c CoverageItem) Decided() bool {
	return c.Status == StatusManuallyApproved || c.Status == StatusRejected
}

// Outlet is a publication, channel or account that produced coverage.
type Outlet struct {
	ID          int64
	Name        string
	IdentityKey string
	Audience    int64
	Tier        Tier
	Active      bool
}

// RulePolarity marks a keyword rule as permitting or forbidding.
type RulePolarity string

const (
	PolarityWhitelist RulePolarity = "whitelist"
	PolarityBlacklist RulePolarity = "blacklist"
)

// KeywordRule is a client-scoped (optionally game-scoped) literal term.
type KeywordRule struct {
	ID       int64
	ClientID int64
	GameID   *int64
	Term     string
	Polarity RulePolarity
}

// Source is a configured scan origin: a feed URL or a search definition.
type Source struct {
	ID            int64
	ClientID      int64
	GameID        *int64
	GameName      string
	Kind          string // feed, youtube, social_search, social_handles
	Name          string
	FeedURL       string
	Terms         []string
	Handles       []string
	Frequency     Frequency
	LastRunAt     *time.Time
	LastRunStatus string
	LastRunNote   string
	FailureCount  int
	Active        bool
}

// DefaultType maps a source kind to the coverage type stamped at ingestion.
// The classifier only reclassifies items still carrying this default.
func (k SourceKind) DefaultType() CoverageType {
	switch k {
	case SourceVideo:
		return TypeVideo
	case SourceSocial:
		return TypeMention
	default:
		return TypeNews
	}
}
