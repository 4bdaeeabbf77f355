package handler

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"viammo.app/tripscan/internal/service"
)

const stateCookieName = "tripscan_oauth_state"

type AuthHandler struct {
	authService  service.AuthService
	scanService  service.ScanService
	dashboardURL string
	isProduction bool
}

func NewAuthHandler(authService service.AuthService, scanService service.ScanService, dashboardURL string, isProduction bool) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		scanService:  scanService,
		dashboardURL: dashboardURL,
		isProduction: isProduction,
	}
}

func (h *AuthHandler) Login(c *gin.Context) {
	state, err := generateState()
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "failed to generate state", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to initiate login"})
		return
	}

	c.SetCookie(stateCookieName, state, 600, "/", "", h.isProduction, true)
	c.Redirect(http.StatusTemporaryRedirect, h.authService.AuthorizationURL(state))
}

// Callback finishes the consent flow and starts a scan with the new token,
// then sends the user to the dashboard page that follows it.
func (h *AuthHandler) Callback(c *gin.Context) {
	ctx := c.Request.Context()

	code := c.Query("code")
	state := c.Query("state")

	if errorParam := c.Query("error"); errorParam != "" {
		slog.WarnContext(ctx, "OAuth error", "error", errorParam)
		c.Redirect(http.StatusTemporaryRedirect, h.dashboardURL+"?auth_error="+errorParam)
		return
	}

	storedState, err := c.Cookie(stateCookieName)
	if err != nil || state == "" || state != storedState {
		slog.WarnContext(ctx, "state mismatch")
		c.Redirect(http.StatusTemporaryRedirect, h.dashboardURL+"?auth_error=invalid_state")
		return
	}
	c.SetCookie(stateCookieName, "", -1, "/", "", h.isProduction, true)

	if code == "" {
		c.Redirect(http.StatusTemporaryRedirect, h.dashboardURL+"?auth_error=no_code")
		return
	}

	tok, err := h.authService.Exchange(ctx, code)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCode) {
			c.Redirect(http.StatusTemporaryRedirect, h.dashboardURL+"?auth_error=invalid_code")
			return
		}
		c.Redirect(http.StatusTemporaryRedirect, h.dashboardURL+"?auth_error=callback_failed")
		return
	}

	scan, err := h.scanService.Start(ctx, tok)
	if err != nil {
		slog.ErrorContext(ctx, "failed to start scan after login", "error", err)
		c.Redirect(http.StatusTemporaryRedirect, h.dashboardURL+"?auth_error=scan_failed")
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, fmt.Sprintf("%s/scans/%d", h.dashboardURL, scan.ID))
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
