package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/medcase/medcase-backend/internal/pkg/apierr"
	"github.com/medcase/medcase-backend/internal/pkg/dbctx"
	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/services"
)

type SRSHandler struct {
	log       *logger.Logger
	reviewSvc services.ReviewService
}

func NewSRSHandler(log *logger.Logger, reviewSvc services.ReviewService) *SRSHandler {
	return &SRSHandler{
		log:       log.With("handler", "SRSHandler"),
		reviewSvc: reviewSvc,
	}
}

// POST /api/srs/attempts
// Record a graded attempt and return the new review state.
func (h *SRSHandler) RecordAttempt(c *gin.Context) {
	learnerID, ok := learnerFrom(c)
	if !ok {
		return
	}

	var req services.RecordAttemptInput
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}

	result, err := h.reviewSvc.RecordAttempt(dbctx.Context{Ctx: c.Request.Context()}, learnerID, req)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondCreated(c, result)
}

// GET /api/cases/:id/progress
// Due state of every question in a case.
func (h *SRSHandler) CaseProgress(c *gin.Context) {
	learnerID, ok := learnerFrom(c)
	if !ok {
		return
	}

	caseID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_error",
			apierr.Validation("id", "case id must be an integer"))
		return
	}

	progress, err := h.reviewSvc.GetProgress(dbctx.Context{Ctx: c.Request.Context()}, learnerID, caseID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"progress": progress})
}

// POST /api/study/schedule
// Resolve an awaiting-triage item into a scheduled date or dismissal.
func (h *SRSHandler) Schedule(c *gin.Context) {
	learnerID, ok := learnerFrom(c)
	if !ok {
		return
	}

	var req struct {
		CaseID        int64  `json:"caseId"`
		QuestionIndex int    `json:"questionIndex"`
		Action        string `json:"action"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}

	result, err := h.reviewSvc.ApplyTriageDecision(
		dbctx.Context{Ctx: c.Request.Context()}, learnerID, req.CaseID, req.QuestionIndex, req.Action)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}

// PATCH /api/study/notes
// Annotate the latest attempt on a question.
func (h *SRSHandler) UpdateNotes(c *gin.Context) {
	learnerID, ok := learnerFrom(c)
	if !ok {
		return
	}

	var req struct {
		CaseID        int64  `json:"caseId"`
		QuestionIndex int    `json:"questionIndex"`
		Notes         string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}

	if err := h.reviewSvc.UpdateAttemptNote(
		dbctx.Context{Ctx: c.Request.Context()}, learnerID, req.CaseID, req.QuestionIndex, req.Notes); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"ok": true})
}
