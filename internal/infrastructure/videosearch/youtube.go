package videosearch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"coveragescan/internal/adapter"
	"coveragescan/internal/domain"
	"coveragescan/internal/ports"
)

const (
	defaultBaseURL = "https://www.googleapis.com/youtube/v3"
	quotaProvider  = "youtube"

	// A videos/channels lookup costs one quota unit each on top of the
	// search call.
	lookupCost = 2
)

// Config bounds the adapter's API usage.
type Config struct {
	APIKey     string
	BaseURL    string
	DailyQuota int
	SearchCost int
	MaxResults int
}

// Adapter searches a first-party video platform per tracked keyword group,
// gated by a daily quota counter persisted in the store.
type Adapter struct {
	cfg    Config
	quotas ports.QuotaStore
	client *http.Client
	logger *slog.Logger
}

var _ adapter.Adapter = (*Adapter)(nil)

// New wires the quota store and an HTTP client.
func New(cfg Config, quotas ports.QuotaStore, client *http.Client, logger *slog.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 25
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Adapter{cfg: cfg, quotas: quotas, client: client, logger: logger}
}

// Name identifies the adapter inside the registry.
func (a *Adapter) Name() string {
	return "youtube"
}

// searchResponse is the vendor shape of the search endpoint; nothing beyond
// this file depends on it.
type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			ChannelID    string `json:"channelId"`
			ChannelTitle string `json:"channelTitle"`
			PublishedAt  string `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

// videosResponse carries per-video engagement statistics.
type videosResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// channelsResponse carries subscriber counts for audience tiering.
type channelsResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			SubscriberCount string `json:"subscriberCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// Fetch runs one search per configured term. A failed term does not abort
// the remaining terms; quota exhaustion stops the source with whatever was
// gathered so far.
func (a *Adapter) Fetch(ctx context.Context, source domain.Source) ([]domain.Candidate, error) {
	if a.cfg.APIKey == "" {
		return nil, domain.ErrNotConfigured
	}
	if len(source.Terms) == 0 {
		return nil, fmt.Errorf("source %d has no search terms", source.ID)
	}

	day := time.Now().UTC()
	var out []domain.Candidate

	for _, term := range source.Terms {
		used, err := a.quotas.QuotaUsed(ctx, quotaProvider, day)
		if err != nil {
			return out, fmt.Errorf("read quota: %w", err)
		}
		cost := a.cfg.SearchCost + lookupCost
		if used+cost > a.cfg.DailyQuota {
			if a.logger != nil {
				a.logger.Warn("youtube quota exhausted", "used", used, "quota", a.cfg.DailyQuota)
			}
			return out, domain.ErrQuotaExhausted
		}

		candidates, err := a.searchTerm(ctx, term)
		if qerr := a.quotas.AddQuotaUsed(ctx, quotaProvider, day, cost); qerr != nil && a.logger != nil {
			a.logger.Warn("quota increment failed", "error", qerr)
		}
		if err != nil {
			if a.logger != nil {
				a.logger.Warn("video search failed", "term", term, "error", err)
			}
			continue
		}
		out = append(out, candidates...)
	}

	return out, nil
}

func (a *Adapter) searchTerm(ctx context.Context, term string) ([]domain.Candidate, error) {
	var search searchResponse
	err := a.get(ctx, "/search", url.Values{
		"part":       {"snippet"},
		"q":          {term},
		"type":       {"video"},
		"order":      {"date"},
		"maxResults": {strconv.Itoa(a.cfg.MaxResults)},
	}, &search)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", term, err)
	}
	if len(search.Items) == 0 {
		return nil, nil
	}

	videoIDs := make([]string, 0, len(search.Items))
	channelIDs := make([]string, 0, len(search.Items))
	channelSet := map[string]struct{}{}
	for _, item := range search.Items {
		if item.ID.VideoID != "" {
			videoIDs = append(videoIDs, item.ID.VideoID)
		}
		if _, ok := channelSet[item.Snippet.ChannelID]; !ok && item.Snippet.ChannelID != "" {
			channelSet[item.Snippet.ChannelID] = struct{}{}
			channelIDs = append(channelIDs, item.Snippet.ChannelID)
		}
	}

	stats := map[string][3]string{}
	var videos videosResponse
	if err := a.get(ctx, "/videos", url.Values{"part": {"statistics"}, "id": {strings.Join(videoIDs, ",")}}, &videos); err == nil {
		for _, v := range videos.Items {
			stats[v.ID] = [3]string{v.Statistics.ViewCount, v.Statistics.LikeCount, v.Statistics.CommentCount}
		}
	}

	subscribers := map[string]int64{}
	var channels channelsResponse
	if err := a.get(ctx, "/channels", url.Values{"part": {"statistics"}, "id": {strings.Join(channelIDs, ",")}}, &channels); err == nil {
		for _, c := range channels.Items {
			if n, err := strconv.ParseInt(c.Statistics.SubscriberCount, 10, 64); err == nil {
				subscribers[c.ID] = n
			}
		}
	}

	out := make([]domain.Candidate, 0, len(search.Items))
	for _, item := range search.Items {
		if item.ID.VideoID == "" {
			continue
		}

		published := time.Now().UTC()
		if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
			published = t
		}

		meta := map[string]string{"channel_title": item.Snippet.ChannelTitle}
		if s, ok := stats[item.ID.VideoID]; ok {
			meta["views"] = s[0]
			meta["likes"] = s[1]
			meta["comments"] = s[2]
		}

		out = append(out, domain.Candidate{
			URL:            "https://www.youtube.com/watch?v=" + item.ID.VideoID,
			Title:          item.Snippet.Title,
			Description:    item.Snippet.Description,
			PublishedAt:    published,
			OriginIdentity: "channel:" + item.Snippet.ChannelID,
			OriginName:     item.Snippet.ChannelTitle,
			AudienceHint:   subscribers[item.Snippet.ChannelID],
			Metadata:       meta,
		})
	}

	return out, nil
}

func (a *Adapter) get(ctx context.Context, path string, query url.Values, v any) error {
	query.Set("key", a.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
