package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medcase/medcase-backend/internal/pkg/apierr"
	"github.com/medcase/medcase-backend/internal/pkg/dbctx"
	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/requestdata"
	"github.com/medcase/medcase-backend/internal/services"
)

type StudyHandler struct {
	log        *logger.Logger
	sessionSvc services.SessionService
	statsSvc   services.StatsService
	triageSvc  services.TriageService
}

func NewStudyHandler(
	log *logger.Logger,
	sessionSvc services.SessionService,
	statsSvc services.StatsService,
	triageSvc services.TriageService,
) *StudyHandler {
	return &StudyHandler{
		log:        log.With("handler", "StudyHandler"),
		sessionSvc: sessionSvc,
		statsSvc:   statsSvc,
		triageSvc:  triageSvc,
	}
}

func learnerFrom(c *gin.Context) (string, bool) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.LearnerID == "" {
		RespondError(c, http.StatusUnauthorized, "unauthorized",
			apierr.Validation("X-Learner-ID", "missing learner identity"))
		return "", false
	}
	return rd.LearnerID, true
}

// GET /api/study/session
// Current session state: active with live queue, or idle with the last
// saved preferences.
func (h *StudyHandler) GetSession(c *gin.Context) {
	learnerID, ok := learnerFrom(c)
	if !ok {
		return
	}

	view, err := h.sessionSvc.Get(dbctx.Context{Ctx: c.Request.Context()}, learnerID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, view)
}

// POST /api/study/session
// Start a session from a tag selection, replacing any active one.
func (h *StudyHandler) CreateSession(c *gin.Context) {
	learnerID, ok := learnerFrom(c)
	if !ok {
		return
	}

	var req services.CreateSessionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}

	view, err := h.sessionSvc.Create(dbctx.Context{Ctx: c.Request.Context()}, learnerID, req)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondCreated(c, view)
}

// POST /api/study/session/advance
func (h *StudyHandler) AdvanceSession(c *gin.Context) {
	learnerID, ok := learnerFrom(c)
	if !ok {
		return
	}

	result, err := h.sessionSvc.Advance(dbctx.Context{Ctx: c.Request.Context()}, learnerID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}

// POST /api/study/session/abandon
func (h *StudyHandler) AbandonSession(c *gin.Context) {
	learnerID, ok := learnerFrom(c)
	if !ok {
		return
	}

	if err := h.sessionSvc.Abandon(dbctx.Context{Ctx: c.Request.Context()}, learnerID); err != nil {
		RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/study/review-list
// Triage inbox: unresolved misses with their latest attempt.
func (h *StudyHandler) ReviewList(c *gin.Context) {
	learnerID, ok := learnerFrom(c)
	if !ok {
		return
	}

	items, err := h.triageSvc.List(dbctx.Context{Ctx: c.Request.Context()}, learnerID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"items": items})
}

// GET /api/study/availability-map
func (h *StudyHandler) AvailabilityMap(c *gin.Context) {
	learnerID, ok := learnerFrom(c)
	if !ok {
		return
	}

	availability, err := h.statsSvc.AvailabilityMap(dbctx.Context{Ctx: c.Request.Context()}, learnerID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"cases": availability})
}

// POST /api/study/stats
// Count of currently reviewable questions under a tag selection.
func (h *StudyHandler) Stats(c *gin.Context) {
	learnerID, ok := learnerFrom(c)
	if !ok {
		return
	}

	var req struct {
		TagIDs []int64 `json:"tagIds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}

	count, err := h.statsSvc.AvailableCount(dbctx.Context{Ctx: c.Request.Context()}, learnerID, req.TagIDs)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"count": count})
}
