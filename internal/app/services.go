package app

import (
	"gorm.io/gorm"

	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/platform/cache"
	"github.com/medcase/medcase-backend/internal/services"
	"github.com/medcase/medcase-backend/internal/srs"
)

type Services struct {
	Taxonomy services.TaxonomyService
	Review   services.ReviewService
	Queue    services.QueueService
	Session  services.SessionService
	Triage   services.TriageService
	Stats    services.StatsService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, c *cache.Cache) (Services, error) {
	log.Info("Wiring services...")

	policy, err := srs.ByName(cfg.SRSPolicy)
	if err != nil {
		return Services{}, err
	}
	log.Info("Scheduling policy selected", "policy", policy.Name())

	taxonomySvc := services.NewTaxonomyService(db, log, reposet.Tag)
	reviewSvc := services.NewReviewService(db, log, reposet.Attempt, reposet.ReviewState, reposet.ClinicalCase, policy, c)
	queueSvc := services.NewQueueService(db, log, reposet.ClinicalCase, reposet.ReviewState, taxonomySvc, cfg.QueueLimit)
	sessionSvc := services.NewSessionService(db, log, reposet.StudySession, reposet.Preference, reposet.ReviewState, queueSvc, taxonomySvc)
	triageSvc := services.NewTriageService(db, log, reposet.ReviewState, reposet.Attempt, reposet.ClinicalCase)
	statsSvc := services.NewStatsService(db, log, reposet.ClinicalCase, reposet.ReviewState, reposet.Tag, taxonomySvc, c)

	return Services{
		Taxonomy: taxonomySvc,
		Review:   reviewSvc,
		Queue:    queueSvc,
		Session:  sessionSvc,
		Triage:   triageSvc,
		Stats:    statsSvc,
	}, nil
}
