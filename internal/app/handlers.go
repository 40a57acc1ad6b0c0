package app

import (
	"github.com/medcase/medcase-backend/internal/handlers"
	"github.com/medcase/medcase-backend/internal/pkg/logger"
)

type Handlers struct {
	Study    *handlers.StudyHandler
	SRS      *handlers.SRSHandler
	Taxonomy *handlers.TaxonomyHandler
}

func wireHandlers(log *logger.Logger, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Study:    handlers.NewStudyHandler(log, serviceset.Session, serviceset.Stats, serviceset.Triage),
		SRS:      handlers.NewSRSHandler(log, serviceset.Review),
		Taxonomy: handlers.NewTaxonomyHandler(log, serviceset.Taxonomy),
	}
}
