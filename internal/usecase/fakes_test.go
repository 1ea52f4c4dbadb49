package usecase

import (
	"context"
	"fmt"
	"time"

	"coveragescan/internal/domain"
	"coveragescan/internal/ports"
)

type runRecord struct {
	sourceID int64
	status   string
	note     string
	failures int
	active   bool
}

type fakeSourceRepo struct {
	sources   []domain.Source
	runs      []runRecord
	recordErr error
}

func (f *fakeSourceRepo) ActiveSources(_ context.Context, _ []string) ([]domain.Source, error) {
	var out []domain.Source
	for _, s := range f.sources {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSourceRepo) RecordRun(_ context.Context, sourceID int64, _ time.Time, status, note string, failureCount int, active bool) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.runs = append(f.runs, runRecord{sourceID, status, note, failureCount, active})
	for i := range f.sources {
		if f.sources[i].ID == sourceID {
			f.sources[i].LastRunStatus = status
			f.sources[i].FailureCount = failureCount
			f.sources[i].Active = active
		}
	}
	return nil
}

type fakeCoverageRepo struct {
	known     map[int64][]string
	items     []domain.CoverageItem
	urls      map[string]struct{}
	unscored  []domain.CoverageItem
	applied   map[int64]appliedClassification
	insertErr error
}

type appliedClassification struct {
	score     int
	reasoning string
	ctype     domain.CoverageType
	sentiment domain.Sentiment
	status    domain.ApprovalStatus
}

func newFakeCoverageRepo() *fakeCoverageRepo {
	return &fakeCoverageRepo{
		known:   map[int64][]string{},
		urls:    map[string]struct{}{},
		applied: map[int64]appliedClassification{},
	}
}

func (f *fakeCoverageRepo) KnownURLs(_ context.Context, clientID int64) ([]string, error) {
	return f.known[clientID], nil
}

func (f *fakeCoverageRepo) InsertItems(_ context.Context, items []domain.CoverageItem) (int, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	inserted := 0
	for _, item := range items {
		key := fmt.Sprintf("%d|%s", item.ClientID, item.URL)
		if _, exists := f.urls[key]; exists {
			continue
		}
		f.urls[key] = struct{}{}
		f.items = append(f.items, item)
		inserted++
	}
	return inserted, nil
}

func (f *fakeCoverageRepo) UnscoredItems(_ context.Context, limit int) ([]domain.CoverageItem, error) {
	if len(f.unscored) > limit {
		return f.unscored[:limit], nil
	}
	return f.unscored, nil
}

func (f *fakeCoverageRepo) ApplyClassification(_ context.Context, itemID int64, score int, reasoning string, ctype domain.CoverageType, sentiment domain.Sentiment, status domain.ApprovalStatus) error {
	f.applied[itemID] = appliedClassification{score, reasoning, ctype, sentiment, status}
	return nil
}

type fakeKeywordRepo struct {
	rules map[int64][]domain.KeywordRule
}

func (f *fakeKeywordRepo) RulesForClient(_ context.Context, clientID int64) ([]domain.KeywordRule, error) {
	return f.rules[clientID], nil
}

type fakeOutletRepo struct {
	byKey  map[string]*domain.Outlet
	nextID int64
}

func newFakeOutletRepo() *fakeOutletRepo {
	return &fakeOutletRepo{byKey: map[string]*domain.Outlet{}, nextID: 1}
}

func (f *fakeOutletRepo) FindByIdentity(_ context.Context, key string) (*domain.Outlet, error) {
	return f.byKey[key], nil
}

func (f *fakeOutletRepo) Create(_ context.Context, o domain.Outlet) (int64, error) {
	o.ID = f.nextID
	f.nextID++
	f.byKey[o.IdentityKey] = &o
	return o.ID, nil
}

func (f *fakeOutletRepo) UpdateAudience(_ context.Context, _, _ int64, _ domain.Tier) error {
	return nil
}

type fakeAdapter struct {
	name       string
	candidates map[int64][]domain.Candidate
	errs       map[int64]error
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Fetch(_ context.Context, source domain.Source) ([]domain.Candidate, error) {
	if err, ok := f.errs[source.ID]; ok {
		return f.candidates[source.ID], err
	}
	return f.candidates[source.ID], nil
}

type fakeClassifier struct {
	results map[string]ports.ClassifyResult
	errs    map[string]error
	reqs    []ports.ClassifyRequest
}

func (f *fakeClassifier) Classify(_ context.Context, req ports.ClassifyRequest) (ports.ClassifyResult, error) {
	f.reqs = append(f.reqs, req)
	if err, ok := f.errs[req.URL]; ok {
		return ports.ClassifyResult{}, err
	}
	return f.results[req.URL], nil
}
