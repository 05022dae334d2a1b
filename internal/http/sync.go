package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mrlokans/mlssync/internal/entities"
	"github.com/mrlokans/mlssync/internal/scheduler"
	"github.com/mrlokans/mlssync/internal/syncer"
)

const (
	defaultStatusLimit = 10
	maxStatusLimit     = 100
)

// TriggerRequest is the optional body of POST /api/admin/sync.
type TriggerRequest struct {
	Kind string `json:"kind"`
}

// TriggerResponse describes a run that was accepted for execution.
type TriggerResponse struct {
	Message string              `json:"message"`
	RunID   string              `json:"run_id"`
	Kind    entities.SyncKind   `json:"kind"`
	Status  entities.SyncStatus `json:"status"`
	DryRun  bool                `json:"dry_run"`
}

// StatusResponse is the body of GET /api/admin/sync/status.
type StatusResponse struct {
	LastRun       *entities.SyncRun  `json:"last_run"`
	LastCompleted *entities.SyncRun  `json:"last_completed"`
	History       []entities.SyncRun `json:"history"`
	IsRunning     bool               `json:"is_running"`
	NextRun       *time.Time         `json:"next_run"`
}

// SyncController exposes manual triggering and the run ledger.
type SyncController struct {
	trigger SyncTrigger
	status  SyncStatusReader
	runs    RunReader
}

func NewSyncController(trigger SyncTrigger, status SyncStatusReader, runs RunReader) *SyncController {
	return &SyncController{
		trigger: trigger,
		status:  status,
		runs:    runs,
	}
}

// Trigger handles POST /api/admin/sync.
// The run is created before responding; execution continues in the background.
func (s *SyncController) Trigger(c *gin.Context) {
	var req TriggerRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid request body")
			return
		}
	}
	if req.Kind == "" {
		req.Kind = c.Query("kind")
	}

	kind, ok := entities.ParseSyncKind(req.Kind)
	if !ok {
		respondBadRequest(c, "kind must be 'full' or 'incremental'")
		return
	}

	run, err := s.trigger.Trigger(c.Request.Context(), kind)
	if err != nil {
		var conflict *syncer.ConflictError
		switch {
		case errors.As(err, &conflict):
			c.JSON(http.StatusConflict, ErrorResponse{Error: conflict.Error(), RunID: conflict.RunningRunID})
		case errors.Is(err, scheduler.ErrStopped):
			respondError(c, http.StatusServiceUnavailable, "service is shutting down")
		default:
			respondInternalError(c, err, "trigger sync")
		}
		return
	}

	c.JSON(http.StatusAccepted, TriggerResponse{
		Message: "sync run started",
		RunID:   run.RunID,
		Kind:    run.Kind,
		Status:  run.Status,
		DryRun:  run.DryRun,
	})
}

// Status handles GET /api/admin/sync/status.
func (s *SyncController) Status(c *gin.Context) {
	limit, ok := parseLimitQuery(c, defaultStatusLimit, maxStatusLimit)
	if !ok {
		return
	}

	status, err := s.status.Status(c.Request.Context(), limit)
	if err != nil {
		respondInternalError(c, err, "sync status")
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		LastRun:       status.LastRun,
		LastCompleted: status.LastCompleted,
		History:       status.History,
		IsRunning:     status.IsRunning,
		NextRun:       s.trigger.NextRun(),
	})
}

// GetRun handles GET /api/admin/sync/runs/:run_id.
func (s *SyncController) GetRun(c *gin.Context) {
	run, err := s.runs.GetByRunID(c.Request.Context(), c.Param("run_id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondNotFound(c, "sync run")
		return
	}
	if err != nil {
		respondInternalError(c, err, "get sync run")
		return
	}

	c.JSON(http.StatusOK, run)
}
