package app

import (
	"github.com/gin-gonic/gin"

	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/server"
)

func wireRouter(log *logger.Logger, handlerset Handlers) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		Log:             log,
		StudyHandler:    handlerset.Study,
		SRSHandler:      handlerset.SRS,
		TaxonomyHandler: handlerset.Taxonomy,
	})
}
