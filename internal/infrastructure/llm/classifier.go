package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"coveragescan/internal/domain"
	"coveragescan/internal/ports"
)

const systemPrompt = `You score media coverage for game publishers.
Given tracked keywords and one discovered item, respond with a JSON object:
{"relevance_score": <0-100>, "relevance_reasoning": "<one sentence>",
"suggested_type": "<news|review|video|mention|interview|preview>",
"sentiment": "<positive|neutral|negative>"}
Score how likely the item is genuine coverage of the tracked game or client.`

// Config wires the scoring model.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string // optional
}

// Client implements ports.Classifier using a chat completion constrained to
// structured JSON.
type Client struct {
	client *openai.Client
	model  string
}

var _ ports.Classifier = (*Client)(nil)

// New builds a classifier client from configuration.
func New(cfg Config) *Client {
	var c *openai.Client
	if cfg.BaseURL != "" {
		cc := openai.DefaultConfig(cfg.APIKey)
		cc.BaseURL = cfg.BaseURL
		c = openai.NewClientWithConfig(cc)
	} else {
		c = openai.NewClient(cfg.APIKey)
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{client: c, model: model}
}

// verdict is the raw model response shape before coercion.
type verdict struct {
	RelevanceScore int    `json:"relevance_score"`
	Reasoning      string `json:"relevance_reasoning"`
	SuggestedType  string `json:"suggested_type"`
	Sentiment      string `json:"sentiment"`
}

// Classify sends one item for scoring. Out-of-enum values are coerced to safe
// defaults rather than rejected.
func (c *Client) Classify(ctx context.Context, req ports.ClassifyRequest) (ports.ClassifyResult, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(req)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return ports.ClassifyResult{}, fmt.Errorf("classify completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ports.ClassifyResult{}, fmt.Errorf("classify completion: empty response")
	}

	var v verdict
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &v); err != nil {
		return ports.ClassifyResult{}, fmt.Errorf("decode verdict: %w", err)
	}

	return CoerceVerdict(v.RelevanceScore, v.Reasoning, v.SuggestedType, v.Sentiment), nil
}

// CoerceVerdict clamps the score to [0,100] and maps unknown enum values to
// their safe defaults (type news, sentiment neutral).
func CoerceVerdict(score int, reasoning, suggestedType, sentiment string) ports.ClassifyResult {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	coverageType := domain.TypeNews
	switch domain.CoverageType(strings.ToLower(strings.TrimSpace(suggestedType))) {
	case domain.TypeReview:
		coverageType = domain.TypeReview
	case domain.TypeVideo:
		coverageType = domain.TypeVideo
	case domain.TypeMention:
		coverageType = domain.TypeMention
	case domain.TypeInterview:
		coverageType = domain.TypeInterview
	case domain.TypePreview:
		coverageType = domain.TypePreview
	case domain.TypeNews:
		coverageType = domain.TypeNews
	}

	tone := domain.SentimentNeutral
	switch domain.Sentiment(strings.ToLower(strings.TrimSpace(sentiment))) {
	case domain.SentimentPositive:
		tone = domain.SentimentPositive
	case domain.SentimentNegative:
		tone = domain.SentimentNegative
	}

	return ports.ClassifyResult{
		RelevanceScore: score,
		Reasoning:      strings.TrimSpace(reasoning),
		SuggestedType:  coverageType,
		Sentiment:      tone,
	}
}

func buildUserPrompt(req ports.ClassifyRequest) string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "Tracked keywords: %s\n", strings.Join(req.Keywords, ", "))
	if req.GameDescription != "" {
		fmt.Fprintf(b, "Game: %s\n", req.GameDescription)
	}
	fmt.Fprintf(b, "Title: %s\nURL: %s\n", req.Title, req.URL)
	if req.OutletName != "" {
		fmt.Fprintf(b, "Outlet: %s\n", req.OutletName)
	}
	if req.Territory != "" {
		fmt.Fprintf(b, "Territory: %s\n", req.Territory)
	}
	for _, quote := range req.Quotes {
		fmt.Fprintf(b, "Quote: %s\n", quote)
	}
	return b.String()
}
