package socialsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"coveragescan/internal/adapter"
	"coveragescan/internal/domain"
)

// Config wires the third-party scraping-service endpoint.
type Config struct {
	Endpoint   string
	APIToken   string
	MaxResults int
}

// Adapter invokes scraping-service jobs for social mentions, either with
// free-text search terms or with explicit handle lists; each term or handle
// list is a separate job call.
type Adapter struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

var _ adapter.Adapter = (*Adapter)(nil)

// New builds the adapter; a nil client gets a 60s-timeout default since
// scraping jobs run synchronously.
func New(cfg Config, client *http.Client, logger *slog.Logger) *Adapter {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 25
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Adapter{cfg: cfg, client: client, logger: logger}
}

// Name identifies the adapter inside the registry.
func (a *Adapter) Name() string {
	return "social"
}

// jobRequest is the fixed payload shape the scraping service expects.
type jobRequest struct {
	SearchTerms []string `json:"searchTerms,omitempty"`
	Handles     []string `json:"startUrls,omitempty"`
	MaxItems    int      `json:"maxItems"`
	Sort        string   `json:"sort"`
}

// jobPost is the vendor shape of one scraped post.
type jobPost struct {
	URL        string `json:"url"`
	Text       string `json:"text"`
	AuthorName string `json:"authorName"`
	Author     string `json:"authorHandle"`
	Followers  int64  `json:"authorFollowers"`
	Likes      int64  `json:"likeCount"`
	Reposts    int64  `json:"repostCount"`
	Replies    int64  `json:"replyCount"`
	CreatedAt  string `json:"createdAt"`
}

// Fetch runs one job per search term and one job per handle list. A failed
// job logs and continues; only a fully failed source errors.
func (a *Adapter) Fetch(ctx context.Context, source domain.Source) ([]domain.Candidate, error) {
	if a.cfg.Endpoint == "" || a.cfg.APIToken == "" {
		return nil, domain.ErrNotConfigured
	}
	if len(source.Terms) == 0 && len(source.Handles) == 0 {
		return nil, fmt.Errorf("source %d has neither terms nor handles", source.ID)
	}

	var (
		out      []domain.Candidate
		attempts int
		failures int
	)

	for _, term := range source.Terms {
		attempts++
		posts, err := a.runJob(ctx, jobRequest{SearchTerms: []string{term}, MaxItems: a.cfg.MaxResults, Sort: "Latest"})
		if err != nil {
			failures++
			if a.logger != nil {
				a.logger.Warn("social search job failed", "term", term, "error", err)
			}
			continue
		}
		out = append(out, a.toCandidates(posts)...)
	}

	if len(source.Handles) > 0 {
		attempts++
		posts, err := a.runJob(ctx, jobRequest{Handles: source.Handles, MaxItems: a.cfg.MaxResults, Sort: "Latest"})
		if err != nil {
			failures++
			if a.logger != nil {
				a.logger.Warn("social handle job failed", "handles", len(source.Handles), "error", err)
			}
		} else {
			out = append(out, a.toCandidates(posts)...)
		}
	}

	if attempts > 0 && failures == attempts {
		return nil, fmt.Errorf("all %d scraping jobs failed for source %d", attempts, source.ID)
	}

	return out, nil
}

func (a *Adapter) runJob(ctx context.Context, job jobRequest) ([]jobPost, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("run job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("scraping service %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var posts []jobPost
	if err := json.NewDecoder(resp.Body).Decode(&posts); err != nil {
		return nil, fmt.Errorf("decode job result: %w", err)
	}

	return posts, nil
}

func (a *Adapter) toCandidates(posts []jobPost) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(posts))
	for _, post := range posts {
		if post.URL == "" || post.Author == "" {
			continue
		}

		published := time.Now().UTC()
		if t, err := time.Parse(time.RFC3339, post.CreatedAt); err == nil {
			published = t
		}

		title := post.Text
		if runes := []rune(title); len(runes) > 120 {
			title = string(runes[:120])
		}

		out = append(out, domain.Candidate{
			URL:            post.URL,
			Title:          strings.TrimSpace(title),
			Description:    strings.TrimSpace(post.Text),
			PublishedAt:    published,
			OriginIdentity: "handle:" + strings.TrimPrefix(post.Author, "@"),
			OriginName:     post.AuthorName,
			AudienceHint:   post.Followers,
			Metadata: map[string]string{
				"author":  post.Author,
				"likes":   strconv.FormatInt(post.Likes, 10),
				"reposts": strconv.FormatInt(post.Reposts, 10),
				"replies": strconv.FormatInt(post.Replies, 10),
			},
		})
	}
	return out
}
