package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"viammo.app/tripscan/common/id"
	"viammo.app/tripscan/common/logger"
	"viammo.app/tripscan/internal/model"
	"viammo.app/tripscan/internal/queue"
	"viammo.app/tripscan/internal/taskstore"
)

var (
	ErrScanNotFound = errors.New("scan not found")
	ErrMissingToken = errors.New("missing mailbox access token")
)

type ScanService interface {
	// Start records a new scan, parks tok for the worker and enqueues it.
	Start(ctx context.Context, tok *oauth2.Token) (*model.ScanState, error)
	Get(ctx context.Context, scanID int64) (*model.ScanState, error)
}

type scanService struct {
	store         taskstore.Store
	credentials   taskstore.Credentials
	producer      queue.Producer
	credentialTTL time.Duration
}

func NewScanService(store taskstore.Store, credentials taskstore.Credentials, producer queue.Producer, credentialTTL time.Duration) ScanService {
	return &scanService{
		store:         store,
		credentials:   credentials,
		producer:      producer,
		credentialTTL: credentialTTL,
	}
}

func (s *scanService) Start(ctx context.Context, tok *oauth2.Token) (*model.ScanState, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, ErrMissingToken
	}

	scanID := id.New()
	ctx = logger.WithLogFields(ctx, logger.LogFields{ScanID: &scanID})

	if err := s.credentials.PutToken(ctx, scanID, tok, s.credentialTTL); err != nil {
		return nil, fmt.Errorf("storing credential: %w", err)
	}

	state := &model.ScanState{
		ID:       scanID,
		Status:   model.ScanStatusInProgress,
		Message:  "Scan queued",
		Progress: 0,
	}
	if err := s.store.Put(ctx, state); err != nil {
		return nil, fmt.Errorf("creating scan: %w", err)
	}

	if err := s.producer.Enqueue(ctx, queue.ScanMessage{
		ScanID:  scanID,
		TraceID: logger.TraceIDFromContext(ctx),
	}); err != nil {
		return nil, fmt.Errorf("enqueueing scan: %w", err)
	}

	slog.InfoContext(ctx, "scan started")
	return state, nil
}

func (s *scanService) Get(ctx context.Context, scanID int64) (*model.ScanState, error) {
	state, err := s.store.Get(ctx, scanID)
	if err != nil {
		if errors.Is(err, taskstore.ErrNotFound) {
			return nil, ErrScanNotFound
		}
		return nil, fmt.Errorf("loading scan: %w", err)
	}
	return state, nil
}
