package strava

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/2beens/runcoach/internal/telemetry/tracing"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

// AuthCodeURL is the page the athlete visits to grant read access.
func AuthCodeURL(cfg Config, state string) string {
	cfg = cfg.withDefaults()
	return cfg.oauth2Config().AuthCodeURL(
		state,
		oauth2.SetAuthURLParam("scope", authScope),
		oauth2.SetAuthURLParam("approval_prompt", "force"),
	)
}

// Exchange trades the authorization code from the redirect for a token.
// The returned refresh token is what STRAVA_REFRESH_TOKEN has to hold.
func Exchange(ctx context.Context, cfg Config, code string) (_ *oauth2.Token, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "strava.exchange")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	cfg = cfg.withDefaults()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   cfg.Timeout,
	})

	token, err := cfg.oauth2Config().Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange auth code: %w", err)
	}
	return token, nil
}

// TokenExpiry is a readable expiry for CLI output.
func TokenExpiry(token *oauth2.Token) string {
	if token.Expiry.IsZero() {
		return "never"
	}
	return token.Expiry.Format(time.RFC3339)
}
