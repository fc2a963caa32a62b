package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2beens/runcoach/internal/runs"
	"github.com/2beens/runcoach/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL  = "https://www.strava.com/api/v3"
	DefaultAuthURL  = "https://www.strava.com/oauth/authorize"
	DefaultTokenURL = "https://www.strava.com/oauth/token"
	DefaultTimeout  = 30 * time.Second

	// read_all is needed to see private activities
	authScope = "read,activity:read_all"
)

type Config struct {
	BaseURL      string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	ClientID     string
	ClientSecret string
	RefreshToken string
	Timeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

func (c Config) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.AuthURL,
			TokenURL:  c.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// APIError is a non-200 answer from the Strava API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("strava api: status %d: %s", e.StatusCode, e.Body)
}

// Client is a read-only Strava API v3 client. It implements runs.Source
// and the direct lookups of coach.RemoteSource.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ runs.Source = (*Client)(nil)

// NewClient builds a client authenticated with the refresh token from cfg.
// Access tokens are refreshed transparently when they expire.
func NewClient(ctx context.Context, cfg Config) *Client {
	cfg = cfg.withDefaults()

	tracedHttpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   cfg.Timeout,
	}
	// token refreshes go through the traced client too
	ctx = context.WithValue(ctx, oauth2.HTTPClient, tracedHttpClient)
	tokenSource := cfg.oauth2Config().TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	httpClient := oauth2.NewClient(ctx, tokenSource)
	httpClient.Timeout = cfg.Timeout

	return NewClientWithHTTP(cfg.BaseURL, httpClient)
}

// NewClientWithHTTP uses httpClient as is; it must already add the Authorization header.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, target any) error {
	reqURL := c.baseURL + "/" + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read strava response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBytes)}
	}

	if err := json.Unmarshal(respBytes, target); err != nil {
		return fmt.Errorf("unmarshal strava response: %w", err)
	}
	return nil
}

// ListActivities returns the athlete's activities started after the given time.
func (c *Client) ListActivities(ctx context.Context, after time.Time, limit int) ([]runs.Activity, error) {
	return c.ListActivitiesBetween(ctx, after, time.Time{}, limit)
}

// ListActivitiesBetween returns activities started after after and before before.
// A zero bound is left out of the query.
func (c *Client) ListActivitiesBetween(ctx context.Context, after, before time.Time, limit int) (_ []runs.Activity, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "strava.listActivities")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	params := url.Values{}
	if limit > 0 {
		params.Set("per_page", strconv.Itoa(limit))
	}
	if !after.IsZero() {
		params.Set("after", strconv.FormatInt(after.Unix(), 10))
	}
	if !before.IsZero() {
		params.Set("before", strconv.FormatInt(before.Unix(), 10))
	}

	var raw []activity
	if err := c.get(ctx, "athlete/activities", params, &raw); err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}

	activities := make([]runs.Activity, 0, len(raw))
	for _, a := range raw {
		activities = append(activities, a.toActivity())
	}
	span.SetAttributes(attribute.Int("strava.activities", len(activities)))
	log.Debugf("strava: listed %d activities", len(activities))

	return activities, nil
}

// GetActivity returns a single activity of any sport. An unknown id gives runs.ErrActivityNotFound.
func (c *Client) GetActivity(ctx context.Context, id int64) (_ *runs.Activity, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "strava.getActivity")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int64("activity.id", id))

	var raw activity
	if err := c.get(ctx, fmt.Sprintf("activities/%d", id), nil, &raw); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("get activity %d: %w", id, runs.ErrActivityNotFound)
		}
		return nil, fmt.Errorf("get activity %d: %w", id, err)
	}

	a := raw.toActivity()
	return &a, nil
}

func (c *Client) GetLaps(ctx context.Context, id int64) (_ []runs.Lap, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "strava.getLaps")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int64("activity.id", id))

	var laps []runs.Lap
	if err := c.get(ctx, fmt.Sprintf("activities/%d/laps", id), nil, &laps); err != nil {
		return nil, fmt.Errorf("get laps for %d: %w", id, err)
	}
	return laps, nil
}

// GetStreams returns the requested time series keyed by stream type.
func (c *Client) GetStreams(ctx context.Context, id int64, keys []string) (_ map[string]json.RawMessage, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "strava.getStreams")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int64("activity.id", id))

	params := url.Values{}
	params.Set("keys", strings.Join(keys, ","))
	params.Set("key_by_type", "true")

	var streams map[string]json.RawMessage
	if err := c.get(ctx, fmt.Sprintf("activities/%d/streams", id), params, &streams); err != nil {
		return nil, fmt.Errorf("get streams for %d: %w", id, err)
	}
	return streams, nil
}
