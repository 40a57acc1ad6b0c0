package types

const (
	CaseStatusDraft     = "draft"
	CaseStatusPublished = "published"
)

// ClinicalCase is read-only from this service's perspective; authoring
// happens elsewhere.
type ClinicalCase struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string `gorm:"column:title;not null" json:"title"`
	Description string `gorm:"column:description" json:"description,omitempty"`
	Status      string `gorm:"column:status;not null;default:'draft';index" json:"status"`
}

func (ClinicalCase) TableName() string { return "clinical_cases" }

// CaseQuestion is an ordered question variant within a case.
type CaseQuestion struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	CaseID       int64  `gorm:"column:case_id;not null;index:idx_case_question_order,unique,priority:1" json:"case_id"`
	OrderIndex   int    `gorm:"column:order_index;not null;index:idx_case_question_order,unique,priority:2" json:"order_index"`
	QuestionText string `gorm:"column:question_text;not null" json:"question_text"`
}

func (CaseQuestion) TableName() string { return "case_questions" }

// CaseTag links a case to a topic tag.
type CaseTag struct {
	CaseID int64 `gorm:"column:case_id;not null;index:idx_case_tag,unique,priority:1" json:"case_id"`
	TagID  int64 `gorm:"column:tag_id;not null;index:idx_case_tag,unique,priority:2" json:"tag_id"`
}

func (CaseTag) TableName() string { return "cases_tags" }
