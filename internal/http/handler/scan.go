package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"viammo.app/tripscan/common/id"
	"viammo.app/tripscan/common/logger"
	"viammo.app/tripscan/internal/http/dto"
	"viammo.app/tripscan/internal/model"
	"viammo.app/tripscan/internal/progress"
	"viammo.app/tripscan/internal/service"
)

const defaultStreamBlock = 25 * time.Second

// ProgressReader reads a scan's progress events after lastID. A negative
// block does not wait.
type ProgressReader interface {
	Read(ctx context.Context, scanID int64, lastID string, block time.Duration) ([]progress.StreamEntry, error)
}

type ScanHandler struct {
	scans  service.ScanService
	reader ProgressReader
	block  time.Duration
}

func NewScanHandler(scans service.ScanService, reader ProgressReader, block time.Duration) *ScanHandler {
	if block == 0 {
		block = defaultStreamBlock
	}
	return &ScanHandler{scans: scans, reader: reader, block: block}
}

// Start begins a scan of the mailbox the bearer token grants access to.
func (h *ScanHandler) Start(c *gin.Context) {
	ctx := c.Request.Context()

	accessToken, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	var req dto.StartScanRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.WarnContext(ctx, "invalid request body", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	state, err := h.scans.Start(ctx, &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: req.RefreshToken,
		TokenType:    "Bearer",
	})
	if err != nil {
		if errors.Is(err, service.ErrMissingToken) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to start scan", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start scan"})
		return
	}

	c.JSON(http.StatusAccepted, dto.ToScanStatusResponse(state))
}

func (h *ScanHandler) Status(c *gin.Context) {
	state, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.ToScanStatusResponse(state))
}

// Result returns the full state, emails and recommendations included.
func (h *ScanHandler) Result(c *gin.Context) {
	state, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, state)
}

// Stream relays progress events over SSE until the scan finishes or the
// client goes away. Clients resume with Last-Event-ID or ?last_id=.
func (h *ScanHandler) Stream(c *gin.Context) {
	state, ok := h.load(c)
	if !ok {
		return
	}
	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{ScanID: &state.ID})

	lastID := c.Query("last_id")
	if lastID == "" {
		lastID = c.GetHeader("Last-Event-ID")
	}
	if lastID == "" {
		lastID = "0"
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	setSSEHeaders(c.Writer)
	c.Status(http.StatusOK)
	sseWrite(c.Writer, "", "ping", "ready")
	flusher.Flush()

	// A finished scan may have outlived its stream.
	if state.Status.Terminal() {
		sseWrite(c.Writer, "", "progress", dto.ToScanStatusResponse(state))
		sseWrite(c.Writer, "", "done", string(state.Status))
		flusher.Flush()
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		entries, err := h.reader.Read(ctx, state.ID, lastID, h.block)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.WarnContext(ctx, "reading progress stream failed", "error", err)
			sseWrite(c.Writer, "", "error", map[string]string{"error": err.Error()})
			flusher.Flush()
			return
		}

		if len(entries) == 0 {
			sseWrite(c.Writer, "", "ping", time.Now().UTC().Format(time.RFC3339Nano))
			flusher.Flush()
			continue
		}

		for _, e := range entries {
			lastID = e.ID
			sseWrite(c.Writer, e.ID, "progress", e.JSON())
			if e.Status.Terminal() {
				sseWrite(c.Writer, "", "done", string(e.Status))
				flusher.Flush()
				return
			}
		}
		flusher.Flush()
	}
}

func (h *ScanHandler) load(c *gin.Context) (*model.ScanState, bool) {
	ctx := c.Request.Context()

	scanID, err := id.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scan id"})
		return nil, false
	}

	state, err := h.scans.Get(ctx, scanID)
	if err != nil {
		if errors.Is(err, service.ErrScanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
			return nil, false
		}
		slog.ErrorContext(ctx, "failed to load scan", "error", err, "scan_id", scanID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load scan"})
		return nil, false
	}
	return state, true
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
