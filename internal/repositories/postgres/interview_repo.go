package postgres

import (
	"context"
	"time"

	"github.com/yoockh/mockinterview/internal/models"
	"gorm.io/gorm"
)

type InterviewRepository interface {
	Create(ctx context.Context, iv *models.Interview) error
	GetByID(ctx context.Context, id string) (*models.Interview, error)
	GetByConversationID(ctx context.Context, conversationID string) (*models.Interview, error)
	ListByAccount(ctx context.Context, accountID string) ([]models.Interview, error)

	// UpdateScheduled applies fields only while the row is still scheduled
	// with the given duration; false means it changed underneath.
	UpdateScheduled(ctx context.Context, id string, expectedDuration int, fields map[string]any) (bool, error)
	// DeleteIf removes the row only if status and duration still match.
	DeleteIf(ctx context.Context, id string, status models.InterviewStatus, duration int) (bool, error)

	TransitionPrompt(ctx context.Context, id string, from []models.PromptStatus, to models.PromptStatus, fields map[string]any) (bool, error)
	TransitionFeedback(ctx context.Context, id string, from []models.FeedbackStatus, to models.FeedbackStatus, fields map[string]any) (bool, error)
	// AttachConversation writes the conversation fields once.
	AttachConversation(ctx context.Context, id string, c models.Conversation, personaID string) (bool, error)
	// MarkConversationEnded records the first end time; later calls keep it.
	MarkConversationEnded(ctx context.Context, id string, at time.Time) error
}

type interviewRepo struct {
	db *gorm.DB
}

func NewInterviewRepo(db *gorm.DB) InterviewRepository {
	return &interviewRepo{db: db}
}

func (r *interviewRepo) Create(ctx context.Context, iv *models.Interview) error {
	now := time.Now().UTC()
	if iv.CreatedAt.IsZero() {
		iv.CreatedAt = now
	}
	iv.UpdatedAt = now
	return classify(conn(ctx, r.db).Create(iv).Error)
}

func (r *interviewRepo) GetByID(ctx context.Context, id string) (*models.Interview, error) {
	var iv models.Interview
	err := conn(ctx, r.db).Where("id = ?", id).Take(&iv).Error
	if err != nil {
		return nil, classify(err)
	}
	return &iv, nil
}

func (r *interviewRepo) GetByConversationID(ctx context.Context, conversationID string) (*models.Interview, error) {
	var iv models.Interview
	err := conn(ctx, r.db).Where("tavus_conversation_id = ?", conversationID).Take(&iv).Error
	if err != nil {
		return nil, classify(err)
	}
	return &iv, nil
}

func (r *interviewRepo) ListByAccount(ctx context.Context, accountID string) ([]models.Interview, error) {
	var rows []models.Interview
	err := conn(ctx, r.db).
		Where("account_id = ?", accountID).
		Order("scheduled_at DESC").
		Find(&rows).Error
	return rows, classify(err)
}

func (r *interviewRepo) UpdateScheduled(ctx context.Context, id string, expectedDuration int, fields map[string]any) (bool, error) {
	fields["updated_at"] = time.Now().UTC()
	res := conn(ctx, r.db).
		Model(&models.Interview{}).
		Where("id = ? AND status = ? AND duration_minutes = ?", id, models.InterviewScheduled, expectedDuration).
		Updates(fields)
	if res.Error != nil {
		return false, classify(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *interviewRepo) DeleteIf(ctx context.Context, id string, status models.InterviewStatus, duration int) (bool, error) {
	res := conn(ctx, r.db).
		Where("id = ? AND status = ? AND duration_minutes = ?", id, status, duration).
		Delete(&models.Interview{})
	if res.Error != nil {
		return false, classify(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *interviewRepo) TransitionPrompt(ctx context.Context, id string, from []models.PromptStatus, to models.PromptStatus, fields map[string]any) (bool, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["prompt_status"] = to
	fields["updated_at"] = time.Now().UTC()
	res := conn(ctx, r.db).
		Model(&models.Interview{}).
		Where("id = ? AND prompt_status IN ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, classify(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *interviewRepo) TransitionFeedback(ctx context.Context, id string, from []models.FeedbackStatus, to models.FeedbackStatus, fields map[string]any) (bool, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["feedback_processing_status"] = to
	fields["updated_at"] = time.Now().UTC()
	res := conn(ctx, r.db).
		Model(&models.Interview{}).
		Where("id = ? AND feedback_processing_status IN ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, classify(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *interviewRepo) AttachConversation(ctx context.Context, id string, c models.Conversation, personaID string) (bool, error) {
	fields := map[string]any{
		"tavus_conversation_id":  c.ConversationID,
		"tavus_conversation_url": c.ConversationURL,
		"updated_at":             time.Now().UTC(),
	}
	if personaID != "" {
		fields["tavus_persona_id"] = personaID
	}
	res := conn(ctx, r.db).
		Model(&models.Interview{}).
		Where("id = ? AND tavus_conversation_id IS NULL", id).
		Updates(fields)
	if res.Error != nil {
		return false, classify(res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (r *interviewRepo) MarkConversationEnded(ctx context.Context, id string, at time.Time) error {
	err := conn(ctx, r.db).
		Model(&models.Interview{}).
		Where("id = ? AND tavus_conversation_ended_at IS NULL", id).
		Updates(map[string]any{"tavus_conversation_ended_at": at, "updated_at": time.Now().UTC()}).Error
	return classify(err)
}
