// Package twitter fetches account timelines through the TikHub API.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/itsgxxxxx/AI-Monitor/internal/domain"
	"github.com/itsgxxxxx/AI-Monitor/pkg/logx"
)

const (
	defaultBaseURL = "https://api.tikhub.io"
	defaultCount   = 20

	// Tweet timestamps arrive in classic Twitter form:
	// "Wed Oct 10 20:19:24 +0000 2018".
	createdAtLayout = time.RubyDate
)

type Config struct {
	APIKey        string
	BaseURL       string
	UserAgent     string
	Timeout       time.Duration
	RatePerMinute int
	Count         int
}

// Client pulls recent tweets for one account per call. All calls share one
// rate limiter so a large due set cannot burst past the API quota.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Count <= 0 {
		cfg.Count = defaultCount
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 1)
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		log:     log,
	}
}

// flexID tolerates tweet ids serialized as either JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if string(b) == "null" {
		*f = ""
		return nil
	}
	*f = flexID(b)
	return nil
}

type tweet struct {
	TweetID   flexID `json:"tweet_id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

type userTweets struct {
	Pinned   *tweet  `json:"pinned"`
	Timeline []tweet `json:"timeline"`
}

type apiResponse struct {
	Data userTweets `json:"data"`
}

// Fetch returns the pinned tweet (when present) followed by the timeline,
// as raw candidates. Unparsable timestamps leave CreatedAt zero.
func (c *Client) Fetch(ctx context.Context, e domain.Entity) ([]domain.Candidate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	data, err := c.fetchUserTweets(ctx, e.Key)
	if err != nil {
		return nil, err
	}

	var tweets []tweet
	if data.Pinned != nil && (data.Pinned.TweetID != "" || data.Pinned.Text != "") {
		tweets = append(tweets, *data.Pinned)
	}
	tweets = append(tweets, data.Timeline...)

	out := make([]domain.Candidate, 0, len(tweets))
	for _, t := range tweets {
		id := string(t.TweetID)
		if id == "" {
			id = "unknown"
		}
		var created time.Time
		if t.CreatedAt != "" {
			if ts, perr := time.Parse(createdAtLayout, t.CreatedAt); perr == nil {
				created = ts
			}
		}
		out = append(out, domain.Candidate{
			ID:         id,
			Text:       t.Text,
			EntityKey:  e.Key,
			Source:     "Twitter:" + e.Key,
			URL:        "https://x.com/" + e.Key + "/status/" + id,
			CreatedRaw: t.CreatedAt,
			CreatedAt:  created,
		})
	}

	c.log.Debug("timeline fetched",
		logx.String("account", e.Key),
		logx.Int("tweets", len(out)),
	)
	return out, nil
}

func (c *Client) fetchUserTweets(ctx context.Context, screenName string) (userTweets, error) {
	endpoint := c.cfg.BaseURL + "/api/v1/twitter/web/fetch_user_post_tweet"
	q := url.Values{}
	q.Set("screen_name", screenName)
	q.Set("count", strconv.Itoa(c.cfg.Count))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return userTweets{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	c.log.Trace("tikhub request", logx.String("account", screenName), logx.Int("count", c.cfg.Count))
	resp, err := c.http.Do(req)
	if err != nil {
		return userTweets{}, fmt.Errorf("tikhub request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return userTweets{}, fmt.Errorf("tikhub status %d for %s", resp.StatusCode, screenName)
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return userTweets{}, fmt.Errorf("tikhub decode: %w", err)
	}
	return parsed.Data, nil
}
