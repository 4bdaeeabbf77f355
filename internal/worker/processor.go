package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"viammo.app/tripscan/common/llm"
	"viammo.app/tripscan/core/config"
	"viammo.app/tripscan/internal/mailbox"
	"viammo.app/tripscan/internal/model"
	"viammo.app/tripscan/internal/pipeline"
	"viammo.app/tripscan/internal/progress"
	"viammo.app/tripscan/internal/taskstore"
)

const abandonTimeout = 10 * time.Second

// GatewayFactory opens a mailbox for one scan with the user's token.
type GatewayFactory func(ctx context.Context, tok *oauth2.Token) (mailbox.Gateway, error)

// SinkFactory builds the progress sink for one scan.
type SinkFactory func(scanID int64) progress.Sink

// GmailGateways opens Gmail with a static token source.
func GmailGateways(ctx context.Context, tok *oauth2.Token) (mailbox.Gateway, error) {
	return mailbox.NewGmailGateway(ctx, oauth2.StaticTokenSource(tok))
}

type ScanProcessorDeps struct {
	Store       taskstore.Store
	Credentials taskstore.Credentials
	Gateways    GatewayFactory
	Sinks       SinkFactory
	Fast        llm.Completer
	Reasoning   llm.Completer
}

type ScanProcessor struct {
	deps          ScanProcessorDeps
	scan          config.ScanConfig
	keywords      []string
	credentialTTL time.Duration
}

func NewScanProcessor(deps ScanProcessorDeps, scan config.ScanConfig, keywords []string, credentialTTL time.Duration) *ScanProcessor {
	if deps.Gateways == nil {
		deps.Gateways = GmailGateways
	}
	if deps.Sinks == nil {
		deps.Sinks = func(int64) progress.Sink { return progress.LogSink{} }
	}
	return &ScanProcessor{deps: deps, scan: scan, keywords: keywords, credentialTTL: credentialTTL}
}

// Process runs the scan unless it already finished. A scan that ran is never
// retried: its outcome, failed or not, is in the task store. Errors are
// returned only when the scan could not start.
func (p *ScanProcessor) Process(ctx context.Context, scanID int64) error {
	state, err := p.deps.Store.Get(ctx, scanID)
	if err != nil {
		if errors.Is(err, taskstore.ErrNotFound) {
			return NewFatalError(fmt.Errorf("loading scan %d: %w", scanID, err))
		}
		return NewRetryableError(fmt.Errorf("loading scan %d: %w", scanID, err))
	}
	if state.Status.Terminal() {
		slog.InfoContext(ctx, "scan already finished, skipping", "status", state.Status)
		return nil
	}

	sink := p.deps.Sinks(scanID)

	tok, err := p.deps.Credentials.TakeToken(ctx, scanID)
	if err != nil {
		if errors.Is(err, taskstore.ErrNotFound) {
			sink.Emit(ctx, failedEvent("Mailbox access expired before the scan started, please sign in again", err))
			return NewFatalError(err)
		}
		return NewRetryableError(err)
	}

	gateway, err := p.deps.Gateways(ctx, tok)
	if err != nil {
		// Hand the token back so the next attempt can use it.
		if putErr := p.deps.Credentials.PutToken(ctx, scanID, tok, p.credentialTTL); putErr != nil {
			slog.WarnContext(ctx, "failed to return credential", "error", putErr)
		}
		return NewRetryableError(fmt.Errorf("opening mailbox: %w", err))
	}

	_, err = pipeline.New(pipeline.Deps{
		Gateway:   gateway,
		Fast:      p.deps.Fast,
		Reasoning: p.deps.Reasoning,
		Sink:      sink,
	}, p.scan, p.keywords).Run(ctx)
	if err != nil {
		slog.WarnContext(ctx, "scan failed", "error", err)
	}
	return nil
}

// Abandon records a failed status for a scan whose message went to the DLQ,
// unless the scan already reached a terminal state.
func (p *ScanProcessor) Abandon(ctx context.Context, scanID int64, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abandonTimeout)
	defer cancel()

	state, err := p.deps.Store.Get(ctx, scanID)
	if err != nil {
		slog.WarnContext(ctx, "cannot mark abandoned scan failed", "error", err)
		return
	}
	if state.Status.Terminal() {
		return
	}
	p.deps.Sinks(scanID).Emit(ctx, failedEvent("Scan could not be started, please try again", cause))
}

func failedEvent(message string, err error) model.ProgressEvent {
	return model.ProgressEvent{
		Message:   message,
		Progress:  100,
		Status:    model.ScanStatusFailed,
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
	}
}
