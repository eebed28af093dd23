// Package setup performs the one-shot credential validation done when
// an account is first configured: a live login plus a best-effort
// branding scrape to derive a human-readable entry title.
package setup

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"fitconnect/internal/config"
	"fitconnect/internal/fitblocks"
)

// User-actionable validation outcomes.
var (
	ErrInvalidAuth   = errors.New("invalid credentials")
	ErrCannotConnect = errors.New("cannot connect to the service")
)

// Result is the outcome of a successful validation.
type Result struct {
	// Title labels the configured account, e.g. the gym name.
	Title string
	// DisplayName is the user's display name for entity naming.
	DisplayName string
	// BrandingName is the scraped gym name, empty when the scrape
	// found nothing.
	BrandingName string
}

// Validate performs a live login with the configured credentials and
// fetches the branding page. Branding failures are non-fatal: the
// title falls back to "{box} @ {baseURL}".
func Validate(ctx context.Context, api fitblocks.API, cfg *config.Config, logger *zap.Logger) (*Result, error) {
	if err := api.Login(ctx); err != nil {
		var authErr *fitblocks.AuthError
		if errors.As(err, &authErr) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAuth, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrCannotConnect, err)
	}

	branding, err := api.FetchBranding(ctx)
	if err != nil {
		logger.Debug("Branding fetch failed during setup", zap.Error(err))
		branding = ""
	}

	title := branding
	if title == "" {
		title = fmt.Sprintf("%s @ %s", cfg.Box, cfg.BaseURL)
	}

	return &Result{
		Title:        title,
		DisplayName:  cfg.DeriveDisplayName(),
		BrandingName: branding,
	}, nil
}
