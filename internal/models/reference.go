package models

// ReferenceItem is one selectable entry of a lookup table.
type ReferenceItem struct {
	ID          string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Value       string `gorm:"column:value;type:text;uniqueIndex" json:"value"`
	Label       string `gorm:"column:label;type:text" json:"label"`
	Description string `gorm:"column:description;type:text" json:"description,omitempty"`
	Icon        string `gorm:"column:icon;type:text" json:"icon,omitempty"`
	SortOrder   int    `gorm:"column:sort_order" json:"-"`
}

type InterviewType struct{ ReferenceItem }

func (InterviewType) TableName() string { return "interview_types" }

type ExperienceLevel struct{ ReferenceItem }

func (ExperienceLevel) TableName() string { return "experience_levels" }

type DifficultyLevel struct{ ReferenceItem }

func (DifficultyLevel) TableName() string { return "difficulty_levels" }

type ReferenceKind string

const (
	RefInterviewTypes   ReferenceKind = "interview_types"
	RefExperienceLevels ReferenceKind = "experience_levels"
	RefDifficultyLevels ReferenceKind = "difficulty_levels"
)

// Static catalogs. The ids match the seeded rows so degraded lookups still
// produce valid references.
var (
	FallbackInterviewTypes = []ReferenceItem{
		{ID: "0b7c6f1e-3a51-4f0e-9d1a-1f6c2a7e0001", Value: "technical", Label: "Technical", Description: "Coding, system design and problem solving", Icon: "code", SortOrder: 1},
		{ID: "0b7c6f1e-3a51-4f0e-9d1a-1f6c2a7e0002", Value: "behavioral", Label: "Behavioral", Description: "Past experience, teamwork and communication", Icon: "users", SortOrder: 2},
		{ID: "0b7c6f1e-3a51-4f0e-9d1a-1f6c2a7e0003", Value: "mixed", Label: "Mixed", Description: "A blend of technical and behavioral questions", Icon: "layers", SortOrder: 3},
	}
	FallbackExperienceLevels = []ReferenceItem{
		{ID: "4e2d9b8a-6c1f-4b3e-8a7d-2c5e9f1b0001", Value: "entry", Label: "Entry Level (0-2 years)", SortOrder: 1},
		{ID: "4e2d9b8a-6c1f-4b3e-8a7d-2c5e9f1b0002", Value: "mid", Label: "Mid Level (3-5 years)", SortOrder: 2},
		{ID: "4e2d9b8a-6c1f-4b3e-8a7d-2c5e9f1b0003", Value: "senior", Label: "Senior Level (6+ years)", SortOrder: 3},
	}
	FallbackDifficultyLevels = []ReferenceItem{
		{ID: "9a1f3c5d-7e2b-4d6a-b8c0-3e4f5a6b0001", Value: "easy", Label: "Easy", SortOrder: 1},
		{ID: "9a1f3c5d-7e2b-4d6a-b8c0-3e4f5a6b0002", Value: "medium", Label: "Medium", SortOrder: 2},
		{ID: "9a1f3c5d-7e2b-4d6a-b8c0-3e4f5a6b0003", Value: "hard", Label: "Hard", SortOrder: 3},
	}
)

// Fallback returns a copy of the static catalog for kind.
func Fallback(kind ReferenceKind) []ReferenceItem {
	var src []ReferenceItem
	switch kind {
	case RefInterviewTypes:
		src = FallbackInterviewTypes
	case RefExperienceLevels:
		src = FallbackExperienceLevels
	case RefDifficultyLevels:
		src = FallbackDifficultyLevels
	}
	out := make([]ReferenceItem, len(src))
	copy(out, src)
	return out
}
