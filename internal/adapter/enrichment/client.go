package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	domain "user-records-service/internal/domain/user"
	"user-records-service/pkg/logger"
)

// ErrNoInsights is returned when the analysis service gives no usable result.
var ErrNoInsights = errors.New("no insights")

// Config holds the analysis service location.
type Config struct {
	BaseURL     string
	AnalyzePath string
	Timeout     time.Duration
}

// Client calls the text analysis service.
type Client struct {
	client *resty.Client
	path   string
	log    *zap.Logger
}

// NewClient creates a Client for cfg.
func NewClient(cfg Config, log *zap.Logger) *Client {
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}

	path := cfg.AnalyzePath
	if path == "" {
		path = "/analyze"
	}
	return &Client{client: c, path: path, log: log}
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	Success bool          `json:"success"`
	Data    *insightsData `json:"data"`
	Error   *remoteError  `json:"error,omitempty"`
}

type insightsData struct {
	SentimentScore  *float64                `json:"sentimentScore"`
	Tags            []string                `json:"tags"`
	EngagementLevel *domain.EngagementLevel `json:"engagementLevel"`
	Summary         string                  `json:"summary"`
}

type remoteError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Analyze posts text to the analysis service. Every failure wraps
// ErrNoInsights except transport errors and context cancellation.
func (c *Client) Analyze(ctx context.Context, text string) (*domain.Insights, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ErrNoInsights)
	}

	req := c.client.R().
		SetContext(ctx).
		SetBody(&analyzeRequest{Text: text})
	if id := logger.GetCorrelationID(ctx); id != "" {
		req.SetHeader(logger.CorrelationIDHeader, id)
	}

	start := time.Now()
	resp, err := req.Post(c.path)
	if err != nil {
		return nil, fmt.Errorf("analysis request: %w", err)
	}

	logger.WithContext(ctx, c.log).Debug("analysis service responded",
		zap.Int("status", resp.StatusCode()),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrNoInsights, resp.StatusCode())
	}

	var body analyzeResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrNoInsights, err)
	}
	if !body.Success {
		if body.Error != nil {
			return nil, fmt.Errorf("%w: %s (%s)", ErrNoInsights, body.Error.Message, body.Error.Code)
		}
		return nil, fmt.Errorf("%w: success=false", ErrNoInsights)
	}
	if body.Data == nil || body.Data.SentimentScore == nil {
		return nil, fmt.Errorf("%w: missing data", ErrNoInsights)
	}

	score := *body.Data.SentimentScore
	if math.IsNaN(score) || score < -1 || score > 1 {
		return nil, fmt.Errorf("%w: sentiment score %v out of range", ErrNoInsights, score)
	}
	if body.Data.EngagementLevel != nil && !body.Data.EngagementLevel.Valid() {
		return nil, fmt.Errorf("%w: invalid engagement level", ErrNoInsights)
	}

	tags := body.Data.Tags
	if tags == nil {
		tags = []string{}
	}
	return &domain.Insights{
		SentimentScore:  score,
		Tags:            tags,
		EngagementLevel: body.Data.EngagementLevel,
		Summary:         body.Data.Summary,
	}, nil
}
