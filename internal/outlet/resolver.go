package outlet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"coveragescan/internal/domain"
	"coveragescan/internal/ports"
)

// TierFor maps an audience estimate onto a coarse tier; boundaries inclusive.
// A zero or unknown audience leaves the outlet untiered.
func TierFor(audience int64) domain.Tier {
	switch {
	case audience <= 0:
		return domain.TierUntiered
	case audience >= 1_000_000:
		return domain.TierA
	case audience >= 100_000:
		return domain.TierB
	case audience >= 10_000:
		return domain.TierC
	default:
		return domain.TierD
	}
}

// IdentityKey normalizes an origin identity for lookup. Domains lose their
// www. prefix and are lower-cased; channel/handle keys keep their prefix and
// lower-case only the identifier.
func IdentityKey(identity string) string {
	identity = strings.TrimSpace(identity)
	if prefix, rest, ok := strings.Cut(identity, ":"); ok && (prefix == "channel" || prefix == "handle") {
		return prefix + ":" + strings.ToLower(strings.TrimSpace(rest))
	}
	domain := strings.ToLower(identity)
	domain = strings.TrimPrefix(domain, "www.")
	return domain
}

// NameFromDomain derives a display name for feed outlets that arrive without
// one: strip common TLD suffixes and title-case the remaining label.
func NameFromDomain(host string) string {
	host = IdentityKey(host)
	for _, suffix := range []string{".co.uk", ".com.au", ".com", ".net", ".org", ".io", ".gg", ".tv", ".de", ".fr", ".es", ".it", ".pl", ".jp", ".info"} {
		if strings.HasSuffix(host, suffix) {
			host = strings.TrimSuffix(host, suffix)
			break
		}
	}
	if host == "" {
		return "Unknown Outlet"
	}

	words := strings.FieldsFunc(host, func(r rune) bool {
		return r == '.' || r == '-' || r == '_'
	})
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Resolver maps discovered origins to outlet records, creating them lazily.
type Resolver struct {
	outlets ports.OutletRepository
	logger  *slog.Logger
}

// NewResolver wires the outlet repository.
func NewResolver(outlets ports.OutletRepository, logger *slog.Logger) *Resolver {
	return &Resolver{outlets: outlets, logger: logger}
}

// Resolve returns the outlet id for an origin, creating the outlet on first
// sight. Audience estimates are upgraded best-effort when a larger hint
// arrives; failures to upgrade are logged, never fatal.
func (r *Resolver) Resolve(ctx context.Context, candidate domain.Candidate) (int64, error) {
	key := IdentityKey(candidate.OriginIdentity)
	if key == "" {
		return 0, fmt.Errorf("candidate %s has no origin identity", candidate.URL)
	}

	existing, err := r.outlets.FindByIdentity(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("find outlet %s: %w", key, err)
	}

	if existing != nil {
		if candidate.AudienceHint > existing.Audience {
			if err := r.outlets.UpdateAudience(ctx, existing.ID, candidate.AudienceHint, TierFor(candidate.AudienceHint)); err != nil && r.logger != nil {
				r.logger.Warn("audience upgrade failed", "outlet", key, "error", err)
			}
		}
		return existing.ID, nil
	}

	name := strings.TrimSpace(candidate.OriginName)
	if name == "" {
		name = NameFromDomain(key)
	}

	created := domain.Outlet{
		Name:        name,
		IdentityKey: key,
		Audience:    candidate.AudienceHint,
		Tier:        TierFor(candidate.AudienceHint),
		Active:      true,
	}

	id, err := r.outlets.Create(ctx, created)
	if err != nil {
		return 0, fmt.Errorf("create outlet %s: %w", key, err)
	}

	if r.logger != nil {
		r.logger.Debug("outlet created", "identity", key, "name", name, "tier", created.Tier)
	}
	return id, nil
}
