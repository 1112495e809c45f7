package services

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/mockinterview/internal/jobs"
	"github.com/yoockh/mockinterview/internal/models"
	"github.com/yoockh/mockinterview/internal/observability"
	pgrepo "github.com/yoockh/mockinterview/internal/repositories/postgres"
	"github.com/yoockh/mockinterview/internal/utils"
)

// FeedbackService hands ended conversations to the feedback pipeline. It
// only moves feedback_processing_status to processing; the pipeline owns
// every later transition.
type FeedbackService interface {
	Start(ctx context.Context, accountID, interviewID, conversationID string) (*models.Interview, error)
}

type feedbackService struct {
	interviews pgrepo.InterviewRepository
	jobs       jobs.Publisher
	notifier   jobs.Notifier
	metrics    *observability.Metrics
	log        *logrus.Logger
	timeout    time.Duration
}

func NewFeedbackService(interviews pgrepo.InterviewRepository, pub jobs.Publisher, notifier jobs.Notifier, metrics *observability.Metrics, log *logrus.Logger, timeout time.Duration) FeedbackService {
	if log == nil {
		log = logrus.New()
	}
	if notifier == nil {
		notifier = jobs.NopNotifier{}
	}
	return &feedbackService{interviews: interviews, jobs: pub, notifier: notifier, metrics: metrics, log: log, timeout: timeout}
}

func (s *feedbackService) Start(ctx context.Context, accountID, interviewID, conversationID string) (*models.Interview, error) {
	const op = "FeedbackService.Start"

	if accountID == "" || interviewID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "account_id and interview id are required", nil)
	}
	sctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	iv, err := s.interviews.GetByID(sctx, interviewID)
	if err != nil {
		return nil, storeErr(op, "failed to get interview", err)
	}
	if err := checkOwner(op, iv, accountID); err != nil {
		return nil, err
	}
	if !iv.HasConversation() {
		return nil, utils.E(utils.CodeConflict, op, "no session has been started for this interview", nil)
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		conversationID = *iv.TavusConversationID
	}
	if conversationID != *iv.TavusConversationID {
		return nil, utils.E(utils.CodeInvalidArgument, op, "conversation does not belong to this interview", nil)
	}

	if done, err := feedbackGate(op, iv.FeedbackProcessingStatus); err != nil {
		return nil, err
	} else if done {
		s.metrics.FeedbackTrigger("noop")
		return iv, nil
	}

	now := time.Now().UTC()
	ok, err := s.interviews.TransitionFeedback(sctx, iv.ID,
		[]models.FeedbackStatus{models.FeedbackPending, models.FeedbackFailed}, models.FeedbackProcessing,
		map[string]any{"feedback_requested_at": now, "updated_at": now})
	if err != nil {
		return nil, storeErr(op, "failed to update feedback status", err)
	}
	if !ok {
		cur, err := s.interviews.GetByID(sctx, iv.ID)
		if err != nil {
			return nil, storeErr(op, "failed to reload interview", err)
		}
		if done, err := feedbackGate(op, cur.FeedbackProcessingStatus); err != nil {
			return nil, err
		} else if done {
			s.metrics.FeedbackTrigger("noop")
			return cur, nil
		}
		return nil, utils.E(utils.CodeConflict, op, "feedback status changed concurrently", nil)
	}
	iv.FeedbackProcessingStatus = models.FeedbackProcessing
	iv.FeedbackRequestedAt = &now

	if s.jobs == nil {
		err = utils.E(utils.CodeUnavailable, op, "no job publisher configured", nil)
	} else {
		err = s.jobs.SubmitFeedback(ctx, jobs.FeedbackJob{
			InterviewID:    iv.ID,
			ConversationID: conversationID,
			AccountID:      accountID,
		})
	}
	if err != nil {
		s.metrics.FeedbackTrigger("failed")
		s.log.WithError(err).WithField("interview_id", iv.ID).Error("feedback hand-off failed")

		wctx, wcancel := detached(ctx, s.timeout)
		defer wcancel()
		if _, terr := s.interviews.TransitionFeedback(wctx, iv.ID,
			[]models.FeedbackStatus{models.FeedbackProcessing}, models.FeedbackFailed,
			map[string]any{"updated_at": time.Now().UTC()}); terr != nil {
			s.log.WithError(terr).WithField("interview_id", iv.ID).Error("failed to record feedback failure")
		}
		s.notify(ctx, jobs.StatusEvent{Type: "feedback_status", InterviewID: iv.ID, Status: string(models.FeedbackFailed)})
		return nil, utils.E(utils.CodeUnavailable, op, "feedback processing could not be started", err)
	}

	s.metrics.FeedbackTrigger("submitted")
	s.notify(ctx, jobs.StatusEvent{
		Type:           "feedback_status",
		InterviewID:    iv.ID,
		Status:         string(models.FeedbackProcessing),
		ConversationID: conversationID,
	})
	s.log.WithFields(logrus.Fields{"interview_id": iv.ID, "conversation_id": conversationID}).Info("feedback processing started")
	return iv, nil
}

// feedbackGate reports done=true when processing is already under way.
func feedbackGate(op string, st models.FeedbackStatus) (bool, error) {
	switch st {
	case models.FeedbackProcessing:
		return true, nil
	case models.FeedbackCompleted:
		return false, utils.E(utils.CodeConflict, op, "feedback has already been produced for this interview", nil)
	}
	return false, nil
}

func (s *feedbackService) notify(ctx context.Context, ev jobs.StatusEvent) {
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.log.WithError(err).WithField("interview_id", ev.InterviewID).Debug("status notify failed")
	}
}
