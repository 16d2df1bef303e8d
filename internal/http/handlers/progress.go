package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/lessonpay-backend/internal/http/response"
	"github.com/yungbote/lessonpay-backend/internal/services"
)

type ProgressHandler struct {
	svc services.ProgressService
}

func NewProgressHandler(svc services.ProgressService) *ProgressHandler {
	return &ProgressHandler{svc: svc}
}

type updateProgressRequest struct {
	WatchTimeSeconds *float64 `json:"watch_time_seconds" binding:"required"`
	TotalTimeSeconds *float64 `json:"total_time_seconds" binding:"required"`
}

type quizAttemptRequest struct {
	Score    *float64 `json:"score" binding:"required"`
	MaxScore float64  `json:"max_score" binding:"required,gt=0"`
}

type bookmarkRequest struct {
	PositionSeconds *float64 `json:"position_seconds" binding:"required"`
	Note            string   `json:"note" binding:"max=500"`
}

// PUT /api/v1/lessons/:id/progress
func (h *ProgressHandler) UpdateProgress(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	lessonID, ok := lessonIDParam(c)
	if !ok {
		return
	}
	var req updateProgressRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.svc.UpdateProgress(c.Request.Context(), userID, lessonID, *req.WatchTimeSeconds, *req.TotalTimeSeconds)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"progress": rec})
}

// POST /api/v1/lessons/:id/complete
func (h *ProgressHandler) Complete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	lessonID, ok := lessonIDParam(c)
	if !ok {
		return
	}
	rec, err := h.svc.CompleteManually(c.Request.Context(), userID, lessonID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"progress": rec})
}

// POST /api/v1/lessons/:id/quiz-attempts
func (h *ProgressHandler) RecordQuizAttempt(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	lessonID, ok := lessonIDParam(c)
	if !ok {
		return
	}
	var req quizAttemptRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.svc.RecordQuizAttempt(c.Request.Context(), userID, lessonID, *req.Score, req.MaxScore)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"progress": rec})
}

// POST /api/v1/lessons/:id/bookmarks
func (h *ProgressHandler) AddBookmark(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	lessonID, ok := lessonIDParam(c)
	if !ok {
		return
	}
	var req bookmarkRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.svc.AddBookmark(c.Request.Context(), userID, lessonID, *req.PositionSeconds, req.Note)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"progress": rec})
}
