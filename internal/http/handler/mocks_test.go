package handler_test

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"viammo.app/tripscan/internal/model"
	"viammo.app/tripscan/internal/progress"
)

type mockScanService struct {
	startFn func(ctx context.Context, tok *oauth2.Token) (*model.ScanState, error)
	getFn   func(ctx context.Context, scanID int64) (*model.ScanState, error)
}

func (m *mockScanService) Start(ctx context.Context, tok *oauth2.Token) (*model.ScanState, error) {
	return m.startFn(ctx, tok)
}

func (m *mockScanService) Get(ctx context.Context, scanID int64) (*model.ScanState, error) {
	return m.getFn(ctx, scanID)
}

type mockAuthService struct {
	authorizationURLFn func(state string) string
	exchangeFn         func(ctx context.Context, code string) (*oauth2.Token, error)
}

func (m *mockAuthService) AuthorizationURL(state string) string {
	if m.authorizationURLFn != nil {
		return m.authorizationURLFn(state)
	}
	return "https://accounts.example.com/auth?state=" + state
}

func (m *mockAuthService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return m.exchangeFn(ctx, code)
}

type mockReader struct {
	readFn func(ctx context.Context, scanID int64, lastID string, block time.Duration) ([]progress.StreamEntry, error)
	lastIDs []string
}

func (m *mockReader) Read(ctx context.Context, scanID int64, lastID string, block time.Duration) ([]progress.StreamEntry, error) {
	m.lastIDs = append(m.lastIDs, lastID)
	return m.readFn(ctx, scanID, lastID, block)
}
