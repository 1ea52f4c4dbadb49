package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"coveragescan/internal/adapter"
	"coveragescan/internal/domain"
)

const (
	acceptHeader = "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8"
	maxBodyBytes = 5 << 20
)

// Adapter pulls and parses syndication documents (RSS/Atom).
type Adapter struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

var _ adapter.Adapter = (*Adapter)(nil)

// New wires an HTTP client; a nil client gets a 20s-timeout default.
func New(client *http.Client, userAgent string, logger *slog.Logger) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Adapter{client: client, userAgent: userAgent, logger: logger}
}

// Name identifies the adapter inside the registry.
func (a *Adapter) Name() string {
	return "feed"
}

// Fetch downloads the feed document and maps its entries to candidates. A
// strict parse failure triggers one sanitize-and-reparse attempt before the
// source is reported failed for this cycle.
func (a *Adapter) Fetch(ctx context.Context, source domain.Source) ([]domain.Candidate, error) {
	if strings.TrimSpace(source.FeedURL) == "" {
		return nil, fmt.Errorf("source %d has no feed url", source.ID)
	}

	raw, err := a.download(ctx, source.FeedURL)
	if err != nil {
		return nil, err
	}

	parsed, err := gofeed.NewParser().ParseString(raw)
	if err != nil {
		if a.logger != nil {
			a.logger.Debug("strict parse failed, sanitizing", "source", source.Name, "error", err)
		}
		parsed, err = gofeed.NewParser().ParseString(sanitizeXML(raw))
		if err != nil {
			return nil, fmt.Errorf("parse feed %s: %w", source.FeedURL, err)
		}
	}

	feedHost := hostOf(source.FeedURL)
	candidates := make([]domain.Candidate, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}

		published := time.Now().UTC()
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			published = *item.UpdatedParsed
		}

		identity := hostOf(link)
		if identity == "" {
			identity = feedHost
		}

		meta := map[string]string{}
		if item.Author != nil && item.Author.Name != "" {
			meta["author"] = item.Author.Name
		}

		candidates = append(candidates, domain.Candidate{
			URL:            link,
			Title:          strings.TrimSpace(item.Title),
			Description:    stripHTML(item.Description),
			PublishedAt:    published,
			OriginIdentity: identity,
			OriginName:     strings.TrimSpace(parsed.Title),
			Metadata:       meta,
		})
	}

	return candidates, nil
}

func (a *Adapter) download(ctx context.Context, feedURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("feed returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read feed body: %w", err)
	}

	return string(body), nil
}

func hostOf(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

// stripHTML reduces a feed description to plain text.
func stripHTML(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}

var entityExpr = regexp.MustCompile(`^(#[0-9]+|#x[0-9a-fA-F]+|[a-zA-Z][a-zA-Z0-9]*);`)

var unquotedAttrExpr = regexp.MustCompile(`(<[^>]*\s[a-zA-Z_:][-a-zA-Z0-9_:.]*)=([^\s"'>][^\s>]*)`)

// sanitizeXML repairs the two malformations seen in the wild: bare ampersands
// that are not part of a known entity, and unquoted attribute values.
func sanitizeXML(raw string) string {
	var b strings.Builder
	b.Grow(len(raw) + 64)

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '&' {
			b.WriteByte(c)
			continue
		}

		rest := raw[i+1:]
		if len(rest) > 12 {
			rest = rest[:12]
		}
		if entityExpr.MatchString(rest) {
			b.WriteByte(c)
		} else {
			b.WriteString("&amp;")
		}
	}

	// One replacement pass quotes a single attribute per tag (the match
	// consumes the tag prefix), so repeat until no unquoted values remain.
	out := b.String()
	for {
		repaired := unquotedAttrExpr.ReplaceAllString(out, `$1="$2"`)
		if repaired == out {
			return repaired
		}
		out = repaired
	}
}
