package app

import (
	"gorm.io/gorm"

	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/repos"
)

type Repos struct {
	Tag          repos.TagRepo
	ClinicalCase repos.ClinicalCaseRepo
	ReviewState  repos.ReviewStateRepo
	Attempt      repos.AttemptRepo
	StudySession repos.StudySessionRepo
	Preference   repos.PreferenceRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Tag:          repos.NewTagRepo(db, log),
		ClinicalCase: repos.NewClinicalCaseRepo(db, log),
		ReviewState:  repos.NewReviewStateRepo(db, log),
		Attempt:      repos.NewAttemptRepo(db, log),
		StudySession: repos.NewStudySessionRepo(db, log),
		Preference:   repos.NewPreferenceRepo(db, log),
	}
}
