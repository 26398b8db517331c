package web

import (
	"time"

	"github.com/dukex/dailyreel/pkg/models"
)

// StartRunRequest is the body of POST /runs.
type StartRunRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Mode string `json:"mode" validate:"required,oneof=dry_run full"`
}

// RunAcceptedResponse is returned when a run is started or asked to stop.
type RunAcceptedResponse struct {
	RunID   string           `json:"run_id"`
	Status  models.RunStatus `json:"status"`
	Message string           `json:"message,omitempty"`
}

type RunListResponse struct {
	Runs       []*models.RunRecord `json:"runs"`
	TotalCount int                 `json:"total_count"`
}

// EventLogResponse carries a replay of the transition log. Clients resume
// with after=last_seq.
type EventLogResponse struct {
	RunID   string             `json:"run_id"`
	Events  []models.StepEvent `json:"events"`
	LastSeq int64              `json:"last_seq"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Checkers  map[string]string `json:"checkers"`
	Timestamp time.Time         `json:"timestamp"`
}
