package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/mockinterview/internal/models"
	"github.com/yoockh/mockinterview/internal/utils"
)

func withConversation(t *testing.T, e *env, convID string) *models.Interview {
	t.Helper()
	ctx := context.Background()
	iv, err := e.interviews.Create(ctx, alice, "Alice", form(10))
	require.NoError(t, err)
	ok, err := e.ivRepo.AttachConversation(ctx, iv.ID, models.Conversation{
		ConversationID:  convID,
		ConversationURL: "https://tavus.daily.co/" + convID,
	}, "")
	require.NoError(t, err)
	require.True(t, ok)
	return iv
}

func TestFeedbackStartIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	svc := NewFeedbackService(e.ivRepo, e.pub, nil, nil, e.log, time.Second)
	iv := withConversation(t, e, "conv-fb")

	out, err := svc.Start(ctx, alice, iv.ID, "conv-fb")
	require.NoError(t, err)
	assert.Equal(t, models.FeedbackProcessing, out.FeedbackProcessingStatus)
	assert.NotNil(t, out.FeedbackRequestedAt)
	require.Len(t, e.pub.feedback, 1)
	assert.Equal(t, "conv-fb", e.pub.feedback[0].ConversationID)

	out, err = svc.Start(ctx, alice, iv.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.FeedbackProcessing, out.FeedbackProcessingStatus)
	assert.Len(t, e.pub.feedback, 1)
}

func TestFeedbackStartPreconditions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	svc := NewFeedbackService(e.ivRepo, e.pub, nil, nil, e.log, time.Second)

	bare, err := e.interviews.Create(ctx, alice, "Alice", form(10))
	require.NoError(t, err)
	_, err = svc.Start(ctx, alice, bare.ID, "")
	assert.True(t, utils.IsCode(err, utils.CodeConflict))

	iv := withConversation(t, e, "conv-x")
	_, err = svc.Start(ctx, alice, iv.ID, "conv-other")
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))

	_, err = svc.Start(ctx, bob, iv.ID, "conv-x")
	assert.True(t, utils.IsCode(err, utils.CodeForbidden))

	require.NoError(t, e.db.Model(&models.Interview{}).Where("id = ?", iv.ID).
		Update("feedback_processing_status", models.FeedbackCompleted).Error)
	_, err = svc.Start(ctx, alice, iv.ID, "conv-x")
	assert.True(t, utils.IsCode(err, utils.CodeConflict))
	assert.Empty(t, e.pub.feedback)
}

func TestFeedbackHandOffFailureIsRetryable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	svc := NewFeedbackService(e.ivRepo, e.pub, nil, nil, e.log, time.Second)
	iv := withConversation(t, e, "conv-y")

	e.pub.err = errors.New("stream unavailable")
	_, err := svc.Start(ctx, alice, iv.ID, "conv-y")
	assert.True(t, utils.IsCode(err, utils.CodeUnavailable))

	stored, err := e.ivRepo.GetByID(ctx, iv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FeedbackFailed, stored.FeedbackProcessingStatus)

	e.pub.err = nil
	out, err := svc.Start(ctx, alice, iv.ID, "conv-y")
	require.NoError(t, err)
	assert.Equal(t, models.FeedbackProcessing, out.FeedbackProcessingStatus)
	assert.Len(t, e.pub.feedback, 1)
}
