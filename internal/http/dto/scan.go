package dto

import (
	"time"

	"viammo.app/tripscan/internal/model"
)

// StartScanRequest optionally carries the refresh token alongside the bearer
// access token so long scans can outlive it.
type StartScanRequest struct {
	RefreshToken string `json:"refresh_token,omitempty" binding:"omitempty,max=2048"`
}

type ScanStatusResponse struct {
	ID        int64            `json:"id,string"`
	Status    model.ScanStatus `json:"status"`
	Message   string           `json:"message"`
	Progress  int              `json:"progress"`
	Error     string           `json:"error,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ToScanStatusResponse drops the artifacts, which can run to megabytes.
func ToScanStatusResponse(s *model.ScanState) *ScanStatusResponse {
	sum := s.Summary()
	return &ScanStatusResponse{
		ID:        sum.ID,
		Status:    sum.Status,
		Message:   sum.Message,
		Progress:  sum.Progress,
		Error:     sum.Error,
		UpdatedAt: sum.UpdatedAt,
	}
}
