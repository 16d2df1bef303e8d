package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lessonpay-backend/internal/http/response"
	pkgerrors "github.com/yungbote/lessonpay-backend/internal/pkg/errors"
	"github.com/yungbote/lessonpay-backend/internal/services"
)

type EnrollmentHandler struct {
	svc services.EnrollmentService
}

func NewEnrollmentHandler(svc services.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{svc: svc}
}

// POST /api/v1/lessons/:id/enroll
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	lessonID, ok := lessonIDParam(c)
	if !ok {
		return
	}
	rec, err := h.svc.Enroll(c.Request.Context(), userID, lessonID)
	if errors.Is(err, pkgerrors.ErrAlreadyEnrolled) && rec != nil {
		response.RespondOK(c, gin.H{"progress": rec, "already_enrolled": true})
		return
	}
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"progress": rec, "already_enrolled": false})
}

// GET /api/v1/lessons/:id/progress
func (h *EnrollmentHandler) GetProgress(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	lessonID, ok := lessonIDParam(c)
	if !ok {
		return
	}
	rec, err := h.svc.GetProgress(c.Request.Context(), userID, lessonID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"progress": rec})
}

// GET /api/v1/me/enrollments
func (h *EnrollmentHandler) ListEnrollments(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	list, err := h.svc.ListEnrollments(c.Request.Context(), userID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"enrollments": list})
}
