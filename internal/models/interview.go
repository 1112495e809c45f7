package models

import (
	"time"

	"gorm.io/datatypes"
)

type InterviewStatus string

const (
	InterviewScheduled InterviewStatus = "scheduled"
	InterviewCompleted InterviewStatus = "completed"
	InterviewCanceled  InterviewStatus = "canceled"
)

type PromptStatus string

const (
	PromptPending    PromptStatus = "pending"
	PromptGenerating PromptStatus = "generating"
	PromptReady      PromptStatus = "ready"
	PromptFailed     PromptStatus = "failed"
)

type FeedbackStatus string

const (
	FeedbackPending    FeedbackStatus = "pending"
	FeedbackProcessing FeedbackStatus = "processing"
	FeedbackCompleted  FeedbackStatus = "completed"
	FeedbackFailed     FeedbackStatus = "failed"
)

type Interview struct {
	ID        string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	AccountID string `gorm:"column:account_id;type:uuid;index:idx_interviews_account_scheduled,priority:1" json:"account_id"`

	Title   string `gorm:"column:title;type:text" json:"title"`
	Role    string `gorm:"column:role;type:text" json:"role"`
	Company string `gorm:"column:company;type:text" json:"company"`

	InterviewTypeID   string  `gorm:"column:interview_type_id;type:uuid" json:"interview_type_id"`
	ExperienceLevelID *string `gorm:"column:experience_level_id;type:uuid" json:"experience_level_id,omitempty"`
	DifficultyLevelID string  `gorm:"column:difficulty_level_id;type:uuid" json:"difficulty_level_id"`

	DurationMinutes int       `gorm:"column:duration_minutes;not null" json:"duration_minutes"`
	ScheduledAt     time.Time `gorm:"column:scheduled_at;index:idx_interviews_account_scheduled,priority:2" json:"scheduled_at"`

	Status InterviewStatus `gorm:"column:status;type:text;not null" json:"status"`
	Score  *int            `gorm:"column:score" json:"score,omitempty"` // 0..100, completed only

	PromptStatus          PromptStatus `gorm:"column:prompt_status;type:text;not null" json:"prompt_status"`
	PromptError           *string      `gorm:"column:prompt_error;type:text" json:"prompt_error,omitempty"`
	ConversationalContext *string      `gorm:"column:conversational_context;type:text" json:"conversational_context,omitempty"`
	CustomGreeting        *string      `gorm:"column:custom_greeting;type:text" json:"custom_greeting,omitempty"`

	TavusPersonaID       *string `gorm:"column:tavus_persona_id;type:text" json:"tavus_persona_id,omitempty"`
	TavusConversationID  *string `gorm:"column:tavus_conversation_id;type:text;uniqueIndex" json:"tavus_conversation_id,omitempty"`
	TavusConversationURL *string `gorm:"column:tavus_conversation_url;type:text" json:"tavus_conversation_url,omitempty"`
	// set once the session was ended through this service
	ConversationEndedAt *time.Time `gorm:"column:tavus_conversation_ended_at" json:"conversation_ended_at,omitempty"`

	FeedbackProcessingStatus FeedbackStatus `gorm:"column:feedback_processing_status;type:text;not null" json:"feedback_processing_status"`
	FeedbackRequestedAt      *time.Time     `gorm:"column:feedback_requested_at" json:"feedback_requested_at,omitempty"`
	// written by the feedback pipeline, opaque to this service
	Feedback datatypes.JSON `gorm:"column:feedback" json:"feedback,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Interview) TableName() string { return "interviews" }

// HasConversation reports whether a live session was provisioned.
func (iv *Interview) HasConversation() bool {
	return iv.TavusConversationID != nil && *iv.TavusConversationID != ""
}

// ConversationStatus is the last known state of the bound conversation.
func (iv *Interview) ConversationStatus() string {
	if iv.ConversationEndedAt != nil || iv.Status == InterviewCompleted || iv.Status == InterviewCanceled {
		return "ended"
	}
	return "active"
}

// InterviewView is an interview joined with its reference labels.
type InterviewView struct {
	Interview
	InterviewType   string `json:"interview_type"`
	TypeLabel       string `json:"interview_type_label"`
	ExperienceLabel string `json:"experience_level_label,omitempty"`
	DifficultyLabel string `json:"difficulty_level_label"`
}

// InterviewForm is the caller-supplied data for a new interview. Type,
// experience and difficulty are human-readable selections.
type InterviewForm struct {
	Title           string    `json:"title"`
	Role            string    `json:"role"`
	Company         string    `json:"company"`
	InterviewType   string    `json:"interview_type"`
	Experience      string    `json:"experience"`
	Difficulty      string    `json:"difficulty"`
	DurationMinutes int       `json:"duration_minutes"`
	ScheduledAt     time.Time `json:"scheduled_at"`
}

// InterviewUpdate is a partial update; nil fields are left untouched.
type InterviewUpdate struct {
	Title           *string    `json:"title,omitempty"`
	Role            *string    `json:"role,omitempty"`
	Company         *string    `json:"company,omitempty"`
	Experience      *string    `json:"experience,omitempty"`
	Difficulty      *string    `json:"difficulty,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
}
