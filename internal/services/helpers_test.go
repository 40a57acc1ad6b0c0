package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/medcase/medcase-backend/internal/pkg/dbctx"
	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/repos"
	"github.com/medcase/medcase-backend/internal/types"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(
		&types.Tag{},
		&types.ClinicalCase{},
		&types.CaseQuestion{},
		&types.CaseTag{},
		&types.ReviewState{},
		&types.AttemptRecord{},
		&types.StudySession{},
		&types.LearnerPreference{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

func testDBC() dbctx.Context {
	return dbctx.Context{Ctx: context.Background()}
}

type fixture struct {
	db       *gorm.DB
	log      *logger.Logger
	tags     repos.TagRepo
	cases    repos.ClinicalCaseRepo
	states   repos.ReviewStateRepo
	attempts repos.AttemptRepo
	sessions repos.StudySessionRepo
	prefs    repos.PreferenceRepo
	taxonomy TaxonomyService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := newTestDB(t)
	log := newTestLogger(t)
	tags := repos.NewTagRepo(gdb, log)
	return &fixture{
		db:       gdb,
		log:      log,
		tags:     tags,
		cases:    repos.NewClinicalCaseRepo(gdb, log),
		states:   repos.NewReviewStateRepo(gdb, log),
		attempts: repos.NewAttemptRepo(gdb, log),
		sessions: repos.NewStudySessionRepo(gdb, log),
		prefs:    repos.NewPreferenceRepo(gdb, log),
		taxonomy: NewTaxonomyService(gdb, log, tags),
	}
}

func (f *fixture) seedCase(t *testing.T, title string, status string, questionCount int) int64 {
	t.Helper()
	row := &types.ClinicalCase{Title: title, Status: status}
	if err := f.db.Create(row).Error; err != nil {
		t.Fatalf("seed case: %v", err)
	}
	for i := 0; i < questionCount; i++ {
		q := &types.CaseQuestion{
			CaseID:       row.ID,
			OrderIndex:   i,
			QuestionText: fmt.Sprintf("%s question %d", title, i),
		}
		if err := f.db.Create(q).Error; err != nil {
			t.Fatalf("seed question: %v", err)
		}
	}
	return row.ID
}

func (f *fixture) tagCase(t *testing.T, caseID, tagID int64) {
	t.Helper()
	if err := f.db.Create(&types.CaseTag{CaseID: caseID, TagID: tagID}).Error; err != nil {
		t.Fatalf("tag case: %v", err)
	}
}

func (f *fixture) seedState(t *testing.T, learnerID string, caseID int64, questionIndex int, mastered bool, next *time.Time) {
	t.Helper()
	status := "learning"
	if mastered {
		status = "mastered"
	}
	row := &types.ReviewState{
		LearnerID:      learnerID,
		CaseID:         caseID,
		QuestionIndex:  questionIndex,
		NextReviewAt:   next,
		IsMastered:     mastered,
		LearningStatus: status,
		EaseFactor:     2.5,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := f.db.Create(row).Error; err != nil {
		t.Fatalf("seed review state: %v", err)
	}
}

func decodeQueueState(t *testing.T, raw []byte) []types.QueueItem {
	t.Helper()
	var queue []types.QueueItem
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &queue); err != nil {
			t.Fatalf("decode queue state: %v", err)
		}
	}
	return queue
}
