package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/2beens/runcoach/internal"
	"github.com/2beens/runcoach/internal/strava"
	"github.com/2beens/runcoach/pkg"

	"github.com/cli/browser"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	refreshTokenEnv = "STRAVA_REFRESH_TOKEN"
	authTimeout     = 5 * time.Minute
)

var (
	authEnvFile   string
	authNoBrowser bool
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize runcoach with Strava and store the refresh token",
	Long: "auth opens the Strava consent page, waits for the redirect on the configured redirect URL " +
		"and writes the resulting refresh token to the env file as " + refreshTokenEnv + ".",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.StravaClientID == "" || cfg.StravaClientSecret == "" {
			return errors.New("STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET must be set")
		}
		stravaCfg := internal.StravaConfig(cfg)

		redirect, err := url.Parse(stravaCfg.RedirectURL)
		if err != nil {
			return fmt.Errorf("invalid redirect url: %w", err)
		}
		state, err := pkg.GenerateRandomString(24)
		if err != nil {
			return err
		}

		listener, err := net.Listen("tcp", redirect.Host)
		if err != nil {
			return fmt.Errorf("listen for redirect on %s: %w", redirect.Host, err)
		}

		authURL := strava.AuthCodeURL(stravaCfg, state)
		fmt.Fprintf(cmd.OutOrStdout(), "Authorize runcoach in your browser:\n%s\n", authURL)
		if !authNoBrowser {
			if err := browser.OpenURL(authURL); err != nil {
				log.Warnf("open browser: %s", err)
			}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), authTimeout)
		defer cancel()

		code, err := waitForCode(ctx, listener, redirect.Path, state)
		if err != nil {
			return err
		}

		token, err := strava.Exchange(ctx, stravaCfg, code)
		if err != nil {
			return err
		}
		if err := saveRefreshToken(authEnvFile, token.RefreshToken); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Refresh token written to %s (access token expires %s)\n",
			authEnvFile, strava.TokenExpiry(token))
		return nil
	},
}

// waitForCode serves the redirect path on listener until one request with
// the expected state arrives, and returns its authorization code.
func waitForCode(ctx context.Context, listener net.Listener, path, state string) (string, error) {
	if path == "" {
		path = "/"
	}

	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)
	deliver := func(r result) {
		select {
		case results <- r:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		switch {
		case query.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		case query.Get("error") != "":
			http.Error(w, "authorization denied", http.StatusForbidden)
			deliver(result{err: fmt.Errorf("authorization denied: %s", query.Get("error"))})
			return
		case query.Get("code") == "":
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "runcoach authorized, you can close this tab.")
		deliver(result{code: query.Get("code")})
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("auth callback server: %s", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	select {
	case r := <-results:
		return r.code, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for strava redirect: %w", ctx.Err())
	}
}

// saveRefreshToken sets STRAVA_REFRESH_TOKEN in envFile, keeping its other entries.
func saveRefreshToken(envFile, refreshToken string) error {
	if refreshToken == "" {
		return errors.New("strava returned no refresh token")
	}

	env, err := godotenv.Read(envFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read %s: %w", envFile, err)
		}
		env = map[string]string{}
	}
	env[refreshTokenEnv] = refreshToken

	if err := godotenv.Write(env, envFile); err != nil {
		return fmt.Errorf("write %s: %w", envFile, err)
	}
	return nil
}

func init() {
	authCmd.Flags().StringVar(&authEnvFile, "env-file", ".env", "env file to store the refresh token in")
	authCmd.Flags().BoolVar(&authNoBrowser, "no-browser", false, "only print the authorization url")

	rootCmd.AddCommand(authCmd)
}
