package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"coveragescan/internal/domain"
	"coveragescan/internal/ports"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Postgres implements all pipeline repositories against one database.
type Postgres struct {
	db *sql.DB
}

var (
	_ ports.SourceRepository   = (*Postgres)(nil)
	_ ports.CoverageRepository = (*Postgres)(nil)
	_ ports.OutletRepository   = (*Postgres)(nil)
	_ ports.KeywordRepository  = (*Postgres)(nil)
	_ ports.QuotaStore         = (*Postgres)(nil)
)

// New wires a sql.DB implementation.
func New(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// ActiveSources loads active sources of the given kinds with their scan
// bookkeeping fields.
func (p *Postgres) ActiveSources(ctx context.Context, kinds []string) ([]domain.Source, error) {
	query, args, err := psql.
		Select("id", "client_id", "game_id", "game_name", "kind", "name", "feed_url",
			"terms", "handles", "frequency", "last_run_at", "last_run_status", "last_run_note",
			"failure_count", "active").
		From("sources").
		Where(sq.Eq{"active": true, "kind": kinds}).
		OrderBy("last_run_at ASC NULLS FIRST").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sources query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		var (
			s        domain.Source
			gameID   sql.NullInt64
			gameName sql.NullString
			feedURL  sql.NullString
			lastRun  sql.NullTime
			status   sql.NullString
			note     sql.NullString
			terms    pq.StringArray
			handles  pq.StringArray
		)
		if err := rows.Scan(&s.ID, &s.ClientID, &gameID, &gameName, &s.Kind, &s.Name, &feedURL,
			&terms, &handles, &s.Frequency, &lastRun, &status, &note, &s.FailureCount, &s.Active); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		if gameID.Valid {
			id := gameID.Int64
			s.GameID = &id
		}
		s.GameName = gameName.String
		s.FeedURL = feedURL.String
		if lastRun.Valid {
			t := lastRun.Time
			s.LastRunAt = &t
		}
		s.LastRunStatus = status.String
		s.LastRunNote = note.String
		s.Terms = terms
		s.Handles = handles
		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sources iteration: %w", err)
	}
	return out, nil
}

// RecordRun writes back one scan attempt's bookkeeping, including the
// deactivation flag once the failure threshold is crossed.
func (p *Postgres) RecordRun(ctx context.Context, sourceID int64, at time.Time, status, note string, failureCount int, active bool) error {
	query, args, err := psql.
		Update("sources").
		Set("last_run_at", at).
		Set("last_run_status", status).
		Set("last_run_note", note).
		Set("failure_count", failureCount).
		Set("active", active).
		Where(sq.Eq{"id": sourceID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build run update: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record run for source %d: %w", sourceID, err)
	}
	return nil
}

// KnownURLs preloads every canonical URL already stored for a client.
func (p *Postgres) KnownURLs(ctx context.Context, clientID int64) ([]string, error) {
	query, args, err := psql.
		Select("url").
		From("coverage_items").
		Where(sq.Eq{"client_id": clientID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build known urls query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query known urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		urls = append(urls, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("known urls iteration: %w", err)
	}
	return urls, nil
}

// InsertItems batch-writes coverage items. A conflicting (client_id, url)
// pair is silently skipped so overlapping invocations stay idempotent.
func (p *Postgres) InsertItems(ctx context.Context, items []domain.CoverageItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	builder := psql.
		Insert("coverage_items").
		Columns("client_id", "game_id", "outlet_id", "url", "title", "published_at",
			"source_kind", "coverage_type", "audience", "territory", "status", "metadata")

	for _, item := range items {
		meta, err := json.Marshal(item.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshal metadata for %s: %w", item.URL, err)
		}
		builder = builder.Values(item.ClientID, item.GameID, item.OutletID, item.URL, item.Title,
			item.PublishedAt, item.SourceKind, item.CoverageType, item.Audience, item.Territory,
			item.Status, meta)
	}

	query, args, err := builder.
		Suffix("ON CONFLICT (client_id, url) DO NOTHING").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build items insert: %w", err)
	}

	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert items: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(inserted), nil
}

// UnscoredItems returns the oldest items still waiting for a relevance score.
func (p *Postgres) UnscoredItems(ctx context.Context, limit int) ([]domain.CoverageItem, error) {
	query, args, err := psql.
		Select("i.id", "i.client_id", "i.game_id", "i.url", "i.title", "i.published_at",
			"i.source_kind", "i.coverage_type", "i.territory", "i.status", "i.metadata",
			"o.id", "o.name").
		From("coverage_items i").
		Join("outlets o ON o.id = i.outlet_id").
		Where("i.relevance_score IS NULL").
		Where(sq.Eq{"i.status": domain.StatusPendingReview}).
		OrderBy("i.created_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build unscored query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query unscored items: %w", err)
	}
	defer rows.Close()

	var out []domain.CoverageItem
	for rows.Next() {
		var (
			item       domain.CoverageItem
			gameID     sql.NullInt64
			territory  sql.NullString
			meta       []byte
			outletName string
		)
		if err := rows.Scan(&item.ID, &item.ClientID, &gameID, &item.URL, &item.Title,
			&item.PublishedAt, &item.SourceKind, &item.CoverageType, &territory, &item.Status,
			&meta, &item.OutletID, &outletName); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if gameID.Valid {
			id := gameID.Int64
			item.GameID = &id
		}
		item.Territory = territory.String
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &item.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for item %d: %w", item.ID, err)
			}
		}
		if item.Metadata == nil {
			item.Metadata = map[string]string{}
		}
		item.Metadata["outlet_name"] = outletName
		out = append(out, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unscored iteration: %w", err)
	}
	return out, nil
}

// ApplyClassification writes the classifier verdict for one item.
func (p *Postgres) ApplyClassification(ctx context.Context, itemID int64, score int, reasoning string, coverageType domain.CoverageType, sentiment domain.Sentiment, status domain.ApprovalStatus) error {
	query, args, err := psql.
		Update("coverage_items").
		Set("relevance_score", score).
		Set("relevance_reasoning", reasoning).
		Set("coverage_type", coverageType).
		Set("sentiment", sentiment).
		Set("status", status).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": itemID}).
		Where(sq.NotEq{"status": []domain.ApprovalStatus{domain.StatusManuallyApproved, domain.StatusRejected}}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build classification update: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("apply classification for item %d: %w", itemID, err)
	}
	return nil
}

// FindByIdentity looks up an outlet by its normalized identity key.
func (p *Postgres) FindByIdentity(ctx context.Context, identityKey string) (*domain.Outlet, error) {
	query, args, err := psql.
		Select("id", "name", "identity_key", "audience", "tier", "active").
		From("outlets").
		Where(sq.Eq{"identity_key": identityKey}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build outlet query: %w", err)
	}

	var o domain.Outlet
	row := p.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&o.ID, &o.Name, &o.IdentityKey, &o.Audience, &o.Tier, &o.Active); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan outlet %s: %w", identityKey, err)
	}
	return &o, nil
}

// Create inserts a new outlet and returns its id.
func (p *Postgres) Create(ctx context.Context, outlet domain.Outlet) (int64, error) {
	query, args, err := psql.
		Insert("outlets").
		Columns("name", "identity_key", "audience", "tier", "active").
		Values(outlet.Name, outlet.IdentityKey, outlet.Audience, outlet.Tier, outlet.Active).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build outlet insert: %w", err)
	}

	var id int64
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert outlet %s: %w", outlet.IdentityKey, err)
	}
	return id, nil
}

// UpdateAudience upgrades an outlet's audience estimate and tier.
func (p *Postgres) UpdateAudience(ctx context.Context, outletID, audience int64, tier domain.Tier) error {
	query, args, err := psql.
		Update("outlets").
		Set("audience", audience).
		Set("tier", tier).
		Where(sq.Eq{"id": outletID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build audience update: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update audience for outlet %d: %w", outletID, err)
	}
	return nil
}

// RulesForClient loads every keyword rule scoped to the client.
func (p *Postgres) RulesForClient(ctx context.Context, clientID int64) ([]domain.KeywordRule, error) {
	query, args, err := psql.
		Select("id", "client_id", "game_id", "term", "polarity").
		From("keyword_rules").
		Where(sq.Eq{"client_id": clientID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build rules query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []domain.KeywordRule
	for rows.Next() {
		var (
			rule   domain.KeywordRule
			gameID sql.NullInt64
		)
		if err := rows.Scan(&rule.ID, &rule.ClientID, &gameID, &rule.Term, &rule.Polarity); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if gameID.Valid {
			id := gameID.Int64
			rule.GameID = &id
		}
		out = append(out, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rules iteration: %w", err)
	}
	return out, nil
}

// QuotaUsed reads the day's usage counter for a provider; missing rows count
// as zero.
func (p *Postgres) QuotaUsed(ctx context.Context, provider string, day time.Time) (int, error) {
	query, args, err := psql.
		Select("used").
		From("api_quotas").
		Where(sq.Eq{"provider": provider, "day": day.Format("2006-01-02")}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build quota query: %w", err)
	}

	var used int
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&used); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("read quota %s: %w", provider, err)
	}
	return used, nil
}

// AddQuotaUsed increments the day's usage counter. Read-then-write staleness
// under overlapping invocations is tolerated; the counter is advisory.
func (p *Postgres) AddQuotaUsed(ctx context.Context, provider string, day time.Time, units int) error {
	query, args, err := psql.
		Insert("api_quotas").
		Columns("provider", "day", "used").
		Values(provider, day.Format("2006-01-02"), units).
		Suffix("ON CONFLICT (provider, day) DO UPDATE SET used = api_quotas.used + EXCLUDED.used").
		ToSql()
	if err != nil {
		return fmt.Errorf("build quota upsert: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("add quota %s: %w", provider, err)
	}
	return nil
}
