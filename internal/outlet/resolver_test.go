package outlet

import (
	"context"
	"testing"

	"coveragescan/internal/domain"
)

func TestTierBoundaries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		audience int64
		want     domain.Tier
	}{
		{1_000_000, domain.TierA},
		{999_999, domain.TierB},
		{100_000, domain.TierB},
		{99_999, domain.TierC},
		{10_000, domain.TierC},
		{9_999, domain.TierD},
		{1, domain.TierD},
		{0, domain.TierUntiered},
	}

	for _, tc := range cases {
		if got := TierFor(tc.audience); got != tc.want {
			t.Fatalf("TierFor(%d) = %s, want %s", tc.audience, got, tc.want)
		}
	}
}

func TestIdentityKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"www.GamesRadar.com", "gamesradar.com"},
		{"channel:UCabc123XYZ", "channel:ucabc123xyz"},
		{"handle:@WidgetFan", "handle:@widgetfan"},
		{"  kotaku.com  ", "kotaku.com"},
	}

	for _, tc := range cases {
		if got := IdentityKey(tc.in); got != tc.want {
			t.Fatalf("IdentityKey(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestNameFromDomain(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"rockpapershotgun.com", "Rockpapershotgun"},
		{"www.eurogamer.net", "Eurogamer"},
		{"indie-game-news.io", "Indie Game News"},
		{"games.on.net", "Games On"},
	}

	for _, tc := range cases {
		if got := NameFromDomain(tc.in); got != tc.want {
			t.Fatalf("NameFromDomain(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

type fakeOutletRepo struct {
	byKey   map[string]*domain.Outlet
	nextID  int64
	updated map[int64]int64
}

func newFakeOutletRepo() *fakeOutletRepo {
	return &fakeOutletRepo{byKey: map[string]*domain.Outlet{}, nextID: 1, updated: map[int64]int64{}}
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

func (f *fakeOutletRepo) UpdateAudience(_ context.Context, id, audience int64, _ domain.Tier) error {
	f.updated[id] = audience
	return nil
}

func TestResolveCreatesLazily(t *testing.T) {
	t.Parallel()

	repo := newFakeOutletRepo()
	resolver := NewResolver(repo, nil)

	candidate := domain.Candidate{
		URL:            "https://www.eurogamer.net/widget-game-review",
		OriginIdentity: "www.eurogamer.net",
	}

	id, err := resolver.Resolve(context.Background(), candidate)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	created := repo.byKey["eurogamer.net"]
	if created == nil {
		t.Fatal("outlet was not created")
	}
	if created.ID != id {
		t.Fatalf("returned id %d does not match created outlet %d", id, created.ID)
	}
	if created.Name != "Eurogamer" {
		t.Fatalf("unexpected derived name: %s", created.Name)
	}
	if created.Tier != domain.TierUntiered {
		t.Fatalf("feed outlet without audience must be untiered, got %s", created.Tier)
	}

	// Second resolve reuses the record.
	again, err := resolver.Resolve(context.Background(), candidate)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if again != id {
		t.Fatalf("expected reuse of outlet %d, got %d", id, again)
	}
}

func TestResolveWithAudienceHint(t *testing.T) {
	t.Parallel()

	repo := newFakeOutletRepo()
	resolver := NewResolver(repo, nil)

	candidate := domain.Candidate{
		URL:            "https://youtube.test/watch?v=1",
		OriginIdentity: "channel:UCbig",
		OriginName:     "Big Games Channel",
		AudienceHint:   2_500_000,
	}

	id, err := resolver.Resolve(context.Background(), candidate)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	created := repo.byKey["channel:ucbig"]
	if created == nil || created.ID != id {
		t.Fatal("channel outlet was not created under its identity key")
	}
	if created.Tier != domain.TierA {
		t.Fatalf("2.5M subscribers should map to tier A, got %s", created.Tier)
	}
	if created.Name != "Big Games Channel" {
		t.Fatalf("vendor-supplied name was not kept: %s", created.Name)
	}

	// A later, larger hint upgrades the stored estimate best-effort.
	candidate.AudienceHint = 3_000_000
	if _, err := resolver.Resolve(context.Background(), candidate); err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if repo.updated[id] != 3_000_000 {
		t.Fatalf("audience was not upgraded: %v", repo.updated)
	}
}
