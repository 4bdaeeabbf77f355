package model

import "time"

type ScanStatus string

const (
	ScanStatusInProgress ScanStatus = "in_progress"
	ScanStatusCompleted  ScanStatus = "completed"
	ScanStatusFailed     ScanStatus = "failed"
)

func (s ScanStatus) Terminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed
}

// ProgressEvent is a checkpoint reported by a running scan. Artifact fields
// are only set on the events that produce them.
type ProgressEvent struct {
	Message         string               `json:"message"`
	Progress        int                  `json:"progress"`
	Status          ScanStatus           `json:"status"`
	Emails          []*EmailRecord       `json:"emails,omitempty"`
	TripInsights    *string              `json:"trip_insights,omitempty"`
	Recommendations []TripRecommendation `json:"recommendations,omitempty"`
	Error           string               `json:"error,omitempty"`
	Timestamp       time.Time            `json:"timestamp"`
}

// ScanState is the persisted view of a scan: the latest event plus every
// artifact seen so far.
type ScanState struct {
	ID              int64                `json:"id,string"`
	Status          ScanStatus           `json:"status"`
	Message         string               `json:"message"`
	Progress        int                  `json:"progress"`
	Emails          []*EmailRecord       `json:"emails,omitempty"`
	TripInsights    *string              `json:"trip_insights,omitempty"`
	Recommendations []TripRecommendation `json:"recommendations,omitempty"`
	Error           string               `json:"error,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// Apply folds ev into the state. Artifacts are only overwritten when the
// event carries them.
func (s *ScanState) Apply(ev ProgressEvent) {
	s.Status = ev.Status
	s.Message = ev.Message
	s.Progress = ev.Progress
	if ev.Emails != nil {
		s.Emails = ev.Emails
	}
	if ev.TripInsights != nil {
		s.TripInsights = ev.TripInsights
	}
	if ev.Recommendations != nil {
		s.Recommendations = ev.Recommendations
	}
	if ev.Error != "" {
		s.Error = ev.Error
	}
	s.UpdatedAt = ev.Timestamp
}

// Summary returns the state without large artifacts, for status polling.
func (s ScanState) Summary() ScanState {
	return ScanState{
		ID:        s.ID,
		Status:    s.Status,
		Message:   s.Message,
		Progress:  s.Progress,
		Error:     s.Error,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
