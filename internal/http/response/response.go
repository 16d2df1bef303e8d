package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lessonpay-backend/internal/pkg/ctxutil"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	writeError(c, status, code, msg)
}

// writeError stamps the envelope with the request's trace id so a client
// report can be matched to server logs.
func writeError(c *gin.Context, status int, code, msg string) {
	apiErr := APIError{Message: msg, Code: code}
	if c.Request != nil {
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
			apiErr.TraceID = td.TraceID
		}
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: apiErr})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
