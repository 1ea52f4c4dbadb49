package usecase

import (
	"context"
	"errors"
	"testing"

	"coveragescan/internal/domain"
	"coveragescan/internal/ports"
)

func TestNextStatusThresholds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		current domain.ApprovalStatus
		score   int
		want    domain.ApprovalStatus
	}{
		{domain.StatusPendingReview, 80, domain.StatusAutoApproved},
		{domain.StatusPendingReview, 95, domain.StatusAutoApproved},
		{domain.StatusPendingReview, 79, domain.StatusPendingReview},
		{domain.StatusPendingReview, 50, domain.StatusPendingReview},
		{domain.StatusPendingReview, 49, domain.StatusRejected},
		{domain.StatusPendingReview, 0, domain.StatusRejected},
		{domain.StatusManuallyApproved, 0, domain.StatusManuallyApproved},
		{domain.StatusRejected, 95, domain.StatusRejected},
	}

	for _, tc := range cases {
		if got := NextStatus(tc.current, tc.score); got != tc.want {
			t.Fatalf("NextStatus(%s, %d) = %s, want %s", tc.current, tc.score, got, tc.want)
		}
	}
}

func unscoredItem(id int64, title, url string, kind domain.SourceKind, ctype domain.CoverageType) domain.CoverageItem {
	return domain.CoverageItem{
		ID: id, ClientID: 1, URL: url, Title: title,
		SourceKind: kind, CoverageType: ctype,
		Status:   domain.StatusPendingReview,
		Metadata: map[string]string{"outlet_name": "Widget Weekly"},
	}
}

func TestClassifyDrivesStateMachine(t *testing.T) {
	t.Parallel()

	coverage := newFakeCoverageRepo()
	coverage.unscored = []domain.CoverageItem{
		unscoredItem(1, "Widget Game review — 8/10", "https://site.test/a", domain.SourceFeed, domain.TypeNews),
		unscoredItem(2, "Vaguely related post", "https://site.test/b", domain.SourceFeed, domain.TypeNews),
		unscoredItem(3, "Spam listing", "https://site.test/c", domain.SourceFeed, domain.TypeNews),
	}

	classifier := &fakeClassifier{results: map[string]ports.ClassifyResult{
		"https://site.test/a": {RelevanceScore: 92, Reasoning: "direct review", SuggestedType: domain.TypeReview, Sentiment: domain.SentimentPositive},
		"https://site.test/b": {RelevanceScore: 60, SuggestedType: domain.TypeMention, Sentiment: domain.SentimentNeutral},
		"https://site.test/c": {RelevanceScore: 10, SuggestedType: domain.TypeNews, Sentiment: domain.SentimentNegative},
	}}

	job := NewClassifyJob(ClassifyDeps{
		Coverage:   coverage,
		Keywords:   widgetRules(),
		Classifier: classifier,
	})

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if report.Processed != 3 || report.AutoApproved != 1 || report.Rejected != 1 || report.PendingReview != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	if coverage.applied[1].status != domain.StatusAutoApproved {
		t.Fatalf("score 92 should auto-approve, got %s", coverage.applied[1].status)
	}
	if coverage.applied[2].status != domain.StatusPendingReview {
		t.Fatalf("score 60 should stay pending, got %s", coverage.applied[2].status)
	}
	if coverage.applied[3].status != domain.StatusRejected {
		t.Fatalf("score 10 should reject, got %s", coverage.applied[3].status)
	}

	// Default-typed item picks up the classifier's suggestion.
	if coverage.applied[1].ctype != domain.TypeReview {
		t.Fatalf("default type should be reclassified, got %s", coverage.applied[1].ctype)
	}
}

func TestClassifyPreservesNonDefaultType(t *testing.T) {
	t.Parallel()

	coverage := newFakeCoverageRepo()
	// Feed item whose type was already changed away from the feed default.
	item := unscoredItem(1, "Widget Game interview", "https://site.test/a", domain.SourceFeed, domain.TypeInterview)
	coverage.unscored = []domain.CoverageItem{item}

	classifier := &fakeClassifier{results: map[string]ports.ClassifyResult{
		"https://site.test/a": {RelevanceScore: 85, SuggestedType: domain.TypeNews, Sentiment: domain.SentimentNeutral},
	}}

	job := NewClassifyJob(ClassifyDeps{Coverage: coverage, Keywords: widgetRules(), Classifier: classifier})
	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if coverage.applied[1].ctype != domain.TypeInterview {
		t.Fatalf("non-default type must be preserved, got %s", coverage.applied[1].ctype)
	}
}

func TestClassifySendsGameContext(t *testing.T) {
	t.Parallel()

	coverage := newFakeCoverageRepo()
	item := unscoredItem(1, "Widget Game review", "https://site.test/a", domain.SourceFeed, domain.TypeNews)
	item.Metadata["game_name"] = "Widget Game"
	coverage.unscored = []domain.CoverageItem{item}

	classifier := &fakeClassifier{results: map[string]ports.ClassifyResult{
		"https://site.test/a": {RelevanceScore: 60, SuggestedType: domain.TypeNews, Sentiment: domain.SentimentNeutral},
	}}

	job := NewClassifyJob(ClassifyDeps{Coverage: coverage, Keywords: widgetRules(), Classifier: classifier})
	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if len(classifier.reqs) != 1 {
		t.Fatalf("expected one classify call, got %d", len(classifier.reqs))
	}
	req := classifier.reqs[0]
	if req.GameDescription != "Widget Game" {
		t.Fatalf("game context missing from classify request: %+v", req)
	}
	if req.OutletName != "Widget Weekly" {
		t.Fatalf("outlet name missing from classify request: %+v", req)
	}
}

func TestClassifyContinuesPastItemFailure(t *testing.T) {
	t.Parallel()

	coverage := newFakeCoverageRepo()
	coverage.unscored = []domain.CoverageItem{
		unscoredItem(1, "Broken item", "https://site.test/bad", domain.SourceFeed, domain.TypeNews),
		unscoredItem(2, "Widget Game review", "https://site.test/good", domain.SourceFeed, domain.TypeNews),
	}

	classifier := &fakeClassifier{
		results: map[string]ports.ClassifyResult{
			"https://site.test/good": {RelevanceScore: 90, SuggestedType: domain.TypeReview, Sentiment: domain.SentimentPositive},
		},
		errs: map[string]error{"https://site.test/bad": errors.New("model timeout")},
	}

	job := NewClassifyJob(ClassifyDeps{Coverage: coverage, Keywords: widgetRules(), Classifier: classifier})
	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("item failure must not abort the batch: %v", err)
	}

	if report.Failed != 1 || report.Processed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("per-item error missing from report: %v", report.Errors)
	}
	if _, ok := coverage.applied[2]; !ok {
		t.Fatal("healthy item was not classified")
	}
}

func TestClassifySkipsWithoutCredentials(t *testing.T) {
	t.Parallel()

	job := NewClassifyJob(ClassifyDeps{Coverage: newFakeCoverageRepo(), Keywords: widgetRules()})
	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("missing classifier must not error: %v", err)
	}
	if report.Skipped == "" {
		t.Fatal("report should explain the skipped stage")
	}
}

func TestClassifyBatchIsBounded(t *testing.T) {
	t.Parallel()

	coverage := newFakeCoverageRepo()
	for i := int64(1); i <= 40; i++ {
		coverage.unscored = append(coverage.unscored,
			unscoredItem(i, "item", "https://site.test/a", domain.SourceFeed, domain.TypeNews))
	}

	classifier := &fakeClassifier{results: map[string]ports.ClassifyResult{
		"https://site.test/a": {RelevanceScore: 60, SuggestedType: domain.TypeNews, Sentiment: domain.SentimentNeutral},
	}}

	job := NewClassifyJob(ClassifyDeps{Coverage: coverage, Keywords: widgetRules(), Classifier: classifier, BatchSize: 25})
	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Processed != 25 {
		t.Fatalf("batch not bounded: processed %d", report.Processed)
	}
}
