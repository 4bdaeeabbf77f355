package service

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/oauth2"

	"viammo.app/tripscan/internal/mailbox"
)

var ErrInvalidCode = errors.New("invalid authorization code")

// AuthService runs the Google consent flow for read-only Gmail access.
type AuthService interface {
	AuthorizationURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

type authService struct {
	cfg *oauth2.Config
}

func NewAuthService(cfg *oauth2.Config) AuthService {
	return &authService{cfg: cfg}
}

func (s *authService) AuthorizationURL(state string) string {
	return mailbox.AuthURL(s.cfg, state)
}

func (s *authService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := s.cfg.Exchange(ctx, code)
	if err != nil {
		slog.ErrorContext(ctx, "failed to exchange authorization code", "error", err)
		return nil, ErrInvalidCode
	}
	return tok, nil
}
