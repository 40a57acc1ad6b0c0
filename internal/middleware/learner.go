package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medcase/medcase-backend/internal/handlers"
	"github.com/medcase/medcase-backend/internal/pkg/apierr"
	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/requestdata"
)

// LearnerHeader carries the caller identity. Authentication proper is
// terminated upstream; by the time a request reaches this service the
// header is trusted.
const LearnerHeader = "X-Learner-ID"

func RequireLearner(log *logger.Logger) gin.HandlerFunc {
	mwLog := log.With("middleware", "RequireLearner")
	return func(c *gin.Context) {
		learnerID := strings.TrimSpace(c.GetHeader(LearnerHeader))
		if learnerID == "" {
			mwLog.Debug("missing learner header", "path", c.FullPath())
			handlers.RespondError(c, http.StatusUnauthorized, "unauthorized",
				apierr.Validation(LearnerHeader, "missing learner identity"))
			c.Abort()
			return
		}

		ctx := requestdata.WithRequestData(c.Request.Context(), &requestdata.RequestData{
			LearnerID: learnerID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
