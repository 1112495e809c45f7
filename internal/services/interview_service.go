package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/mockinterview/internal/cache"
	"github.com/yoockh/mockinterview/internal/jobs"
	"github.com/yoockh/mockinterview/internal/models"
	pgrepo "github.com/yoockh/mockinterview/internal/repositories/postgres"
	"github.com/yoockh/mockinterview/internal/utils"
)

type InterviewService interface {
	Create(ctx context.Context, accountID, accountName string, form models.InterviewForm) (*models.Interview, error)
	Get(ctx context.Context, accountID, id string) (*models.InterviewView, error)
	List(ctx context.Context, accountID string) ([]models.InterviewView, error)
	Update(ctx context.Context, accountID, id string, upd models.InterviewUpdate) (*models.Interview, error)
	Cancel(ctx context.Context, accountID, id string) (*models.Interview, error)
	Delete(ctx context.Context, accountID, id string) error
	RetryPromptGeneration(ctx context.Context, accountID, accountName, id string) (*models.Interview, error)
}

type InterviewDeps struct {
	Tx         pgrepo.Transactor
	Interviews pgrepo.InterviewRepository
	Quota      QuotaService
	Refs       ReferenceService
	Jobs       jobs.Publisher
	Notifier   jobs.Notifier
	Cache      cache.Cache
	Log        *logrus.Logger
	Timeout    time.Duration
}

type interviewService struct {
	tx         pgrepo.Transactor
	interviews pgrepo.InterviewRepository
	quota      QuotaService
	refs       ReferenceService
	jobs       jobs.Publisher
	notifier   jobs.Notifier
	cache      cache.Cache
	log        *logrus.Logger
	timeout    time.Duration
}

func NewInterviewService(d InterviewDeps) InterviewService {
	if d.Log == nil {
		d.Log = logrus.New()
	}
	if d.Notifier == nil {
		d.Notifier = jobs.NopNotifier{}
	}
	return &interviewService{
		tx:         d.Tx,
		interviews: d.Interviews,
		quota:      d.Quota,
		refs:       d.Refs,
		jobs:       d.Jobs,
		notifier:   d.Notifier,
		cache:      d.Cache,
		log:        d.Log,
		timeout:    d.Timeout,
	}
}

func (s *interviewService) Create(ctx context.Context, accountID, accountName string, form models.InterviewForm) (*models.Interview, error) {
	const op = "InterviewService.Create"

	role := strings.TrimSpace(form.Role)
	company := strings.TrimSpace(form.Company)
	if accountID == "" || role == "" || company == "" || strings.TrimSpace(form.InterviewType) == "" ||
		strings.TrimSpace(form.Experience) == "" || strings.TrimSpace(form.Difficulty) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "role, company, interview_type, experience and difficulty are required", nil)
	}
	if form.DurationMinutes <= 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "duration_minutes must be > 0", nil)
	}

	typ, err := s.refs.ResolveInterviewType(ctx, form.InterviewType)
	if err != nil {
		return nil, err
	}
	diff, err := s.refs.ResolveDifficulty(ctx, form.Difficulty)
	if err != nil {
		return nil, err
	}
	var expID *string
	if exp, err := s.refs.ResolveExperience(ctx, form.Experience); err == nil {
		expID = &exp.ID
	} else {
		s.log.WithField("experience", form.Experience).Debug("experience level not resolved, leaving unset")
	}

	title := strings.TrimSpace(form.Title)
	if title == "" {
		title = fmt.Sprintf("%s at %s", role, company)
	}
	scheduled := form.ScheduledAt.UTC()
	if form.ScheduledAt.IsZero() {
		scheduled = time.Now().UTC()
	}

	iv := &models.Interview{
		ID:                       uuid.NewString(),
		AccountID:                accountID,
		Title:                    title,
		Role:                     role,
		Company:                  company,
		InterviewTypeID:          typ.ID,
		ExperienceLevelID:        expID,
		DifficultyLevelID:        diff.ID,
		DurationMinutes:          form.DurationMinutes,
		ScheduledAt:              scheduled,
		Status:                   models.InterviewScheduled,
		PromptStatus:             models.PromptPending,
		FeedbackProcessingStatus: models.FeedbackPending,
	}

	tctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	err = s.tx.WithinTx(tctx, func(ctx context.Context) error {
		if err := s.quota.Reserve(ctx, accountID, iv.DurationMinutes); err != nil {
			return err
		}
		return s.interviews.Create(ctx, iv)
	})
	if err != nil {
		if !isTimeout(err) {
			return nil, storeErr(op, "failed to create interview", err)
		}
		// The commit may still have landed; the id tells us.
		vctx, vcancel := detached(ctx, s.timeout)
		defer vcancel()
		if _, gerr := s.interviews.GetByID(vctx, iv.ID); gerr != nil {
			if errors.Is(gerr, utils.ErrNotFound) {
				return nil, utils.E(utils.CodeTimeout, op, "interview creation timed out; no minutes were reserved", err)
			}
			// Unknown outcome. Queue the prompt anyway: the worker drops
			// jobs whose interview does not exist.
			if serr := s.submitPrompt(vctx, iv, accountName, 1); serr != nil {
				s.log.WithError(serr).WithField("interview_id", iv.ID).Warn("prompt submission after unverified create failed")
			}
			s.log.WithError(gerr).WithField("interview_id", iv.ID).Error("interview creation outcome unknown")
			return nil, utils.E(utils.CodeTimeout, op,
				"interview creation timed out and could not be verified; it may exist with its minutes reserved, list interviews before retrying",
				errors.Join(err, gerr))
		}
		s.log.WithField("interview_id", iv.ID).Warn("interview committed despite timeout")
	}

	s.log.WithFields(logrus.Fields{
		"interview_id": iv.ID,
		"account_id":   accountID,
		"minutes":      iv.DurationMinutes,
	}).Info("interview created")

	if err := s.submitPrompt(ctx, iv, accountName, 1); err != nil {
		s.markPromptFailed(ctx, iv, models.PromptPending, err)
	}
	return iv, nil
}

func (s *interviewService) Get(ctx context.Context, accountID, id string) (*models.InterviewView, error) {
	const op = "InterviewService.Get"

	iv, err := s.load(ctx, op, accountID, id)
	if err != nil {
		return nil, err
	}
	views := s.decorate(ctx, []models.Interview{*iv})
	return &views[0], nil
}

func (s *interviewService) List(ctx context.Context, accountID string) ([]models.InterviewView, error) {
	const op = "InterviewService.List"

	if accountID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "account_id is required", nil)
	}
	sctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	rows, err := s.interviews.ListByAccount(sctx, accountID)
	if err != nil {
		return nil, storeErr(op, "failed to list interviews", err)
	}
	return s.decorate(ctx, rows), nil
}

func (s *interviewService) Update(ctx context.Context, accountID, id string, upd models.InterviewUpdate) (*models.Interview, error) {
	const op = "InterviewService.Update"

	iv, err := s.load(ctx, op, accountID, id)
	if err != nil {
		return nil, err
	}
	if iv.Status != models.InterviewScheduled {
		return nil, utils.E(utils.CodeConflict, op, "only scheduled interviews can be edited", nil)
	}

	fields := map[string]any{}
	for col, v := range map[string]*string{"title": upd.Title, "role": upd.Role, "company": upd.Company} {
		if v == nil {
			continue
		}
		if strings.TrimSpace(*v) == "" {
			return nil, utils.E(utils.CodeInvalidArgument, op, col+" cannot be empty", nil)
		}
		fields[col] = strings.TrimSpace(*v)
	}
	if upd.Difficulty != nil {
		diff, err := s.refs.ResolveDifficulty(ctx, *upd.Difficulty)
		if err != nil {
			return nil, err
		}
		fields["difficulty_level_id"] = diff.ID
	}
	if upd.Experience != nil {
		var expID *string
		if exp, err := s.refs.ResolveExperience(ctx, *upd.Experience); err == nil {
			expID = &exp.ID
		}
		fields["experience_level_id"] = expID
	}
	if upd.ScheduledAt != nil {
		fields["scheduled_at"] = upd.ScheduledAt.UTC()
	}

	delta := 0
	if upd.DurationMinutes != nil {
		if *upd.DurationMinutes <= 0 {
			return nil, utils.E(utils.CodeInvalidArgument, op, "duration_minutes must be > 0", nil)
		}
		delta = *upd.DurationMinutes - iv.DurationMinutes
		fields["duration_minutes"] = *upd.DurationMinutes
	}
	if len(fields) == 0 {
		return iv, nil
	}
	fields["updated_at"] = time.Now().UTC()

	tctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	err = s.tx.WithinTx(tctx, func(ctx context.Context) error {
		if delta > 0 {
			if err := s.quota.Reserve(ctx, accountID, delta); err != nil {
				return err
			}
		}
		ok, err := s.interviews.UpdateScheduled(ctx, id, iv.DurationMinutes, fields)
		if err != nil {
			return err
		}
		if !ok {
			return utils.E(utils.CodeConflict, op, "interview changed concurrently, reload and retry", nil)
		}
		if delta < 0 {
			return s.quota.Release(ctx, accountID, -delta)
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(op, "failed to update interview", err)
	}

	gctx, gcancel := bounded(ctx, s.timeout)
	defer gcancel()
	out, err := s.interviews.GetByID(gctx, id)
	if err != nil {
		return nil, storeErr(op, "failed to reload interview", err)
	}
	return out, nil
}

// Cancel marks a scheduled interview canceled and returns its minutes.
func (s *interviewService) Cancel(ctx context.Context, accountID, id string) (*models.Interview, error) {
	const op = "InterviewService.Cancel"

	iv, err := s.load(ctx, op, accountID, id)
	if err != nil {
		return nil, err
	}
	switch iv.Status {
	case models.InterviewCanceled:
		return iv, nil
	case models.InterviewCompleted:
		return nil, utils.E(utils.CodeConflict, op, "completed interviews cannot be canceled", nil)
	}

	tctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	err = s.tx.WithinTx(tctx, func(ctx context.Context) error {
		ok, err := s.interviews.UpdateScheduled(ctx, id, iv.DurationMinutes, map[string]any{
			"status":     models.InterviewCanceled,
			"updated_at": time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if !ok {
			return utils.E(utils.CodeConflict, op, "interview changed concurrently, reload and retry", nil)
		}
		return s.quota.Release(ctx, accountID, iv.DurationMinutes)
	})
	if err != nil {
		return nil, storeErr(op, "failed to cancel interview", err)
	}

	iv.Status = models.InterviewCanceled
	s.log.WithFields(logrus.Fields{"interview_id": id, "minutes": iv.DurationMinutes}).Info("interview canceled")
	return iv, nil
}

func (s *interviewService) Delete(ctx context.Context, accountID, id string) error {
	const op = "InterviewService.Delete"

	iv, err := s.load(ctx, op, accountID, id)
	if err != nil {
		return err
	}

	tctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	err = s.tx.WithinTx(tctx, func(ctx context.Context) error {
		ok, err := s.interviews.DeleteIf(ctx, id, iv.Status, iv.DurationMinutes)
		if err != nil {
			return err
		}
		if !ok {
			return utils.E(utils.CodeConflict, op, "interview changed concurrently, reload and retry", nil)
		}
		// canceled interviews already gave their minutes back
		if iv.Status == models.InterviewScheduled {
			return s.quota.Release(ctx, accountID, iv.DurationMinutes)
		}
		return nil
	})
	if err != nil {
		return storeErr(op, "failed to delete interview", err)
	}

	if s.cache != nil {
		keys := []string{cache.ConversationKey(id)}
		if iv.HasConversation() {
			keys = append(keys, cache.ConversationByIDKey(*iv.TavusConversationID))
		}
		if err := s.cache.Del(ctx, keys...); err != nil {
			s.log.WithError(err).WithField("interview_id", id).Warn("failed to evict conversation cache")
		}
	}
	return nil
}

func (s *interviewService) RetryPromptGeneration(ctx context.Context, accountID, accountName, id string) (*models.Interview, error) {
	const op = "InterviewService.RetryPromptGeneration"

	iv, err := s.load(ctx, op, accountID, id)
	if err != nil {
		return nil, err
	}

	switch iv.PromptStatus {
	case models.PromptGenerating:
		return iv, nil
	case models.PromptFailed:
	default:
		return nil, utils.E(utils.CodeConflict, op,
			fmt.Sprintf("prompt is %s; only failed generations can be retried", iv.PromptStatus), nil)
	}

	sctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	ok, err := s.interviews.TransitionPrompt(sctx, id,
		[]models.PromptStatus{models.PromptFailed}, models.PromptGenerating,
		map[string]any{"prompt_error": nil})
	if err != nil {
		return nil, storeErr(op, "failed to update prompt status", err)
	}
	if !ok {
		cur, err := s.interviews.GetByID(sctx, id)
		if err != nil {
			return nil, storeErr(op, "failed to reload interview", err)
		}
		if cur.PromptStatus == models.PromptGenerating {
			return cur, nil
		}
		return nil, utils.E(utils.CodeConflict, op,
			fmt.Sprintf("prompt is %s; only failed generations can be retried", cur.PromptStatus), nil)
	}
	iv.PromptStatus = models.PromptGenerating
	iv.PromptError = nil

	if err := s.submitPrompt(ctx, iv, accountName, 2); err != nil {
		s.markPromptFailed(ctx, iv, models.PromptGenerating, err)
		return nil, utils.E(utils.CodeUnavailable, op, "failed to submit prompt generation", err)
	}
	s.notify(ctx, jobs.StatusEvent{Type: "prompt_status", InterviewID: id, Status: string(models.PromptGenerating)})
	return iv, nil
}

func (s *interviewService) load(ctx context.Context, op, accountID, id string) (*models.Interview, error) {
	if accountID == "" || id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "account_id and interview id are required", nil)
	}
	sctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	iv, err := s.interviews.GetByID(sctx, id)
	if err != nil {
		return nil, storeErr(op, "failed to get interview", err)
	}
	if err := checkOwner(op, iv, accountID); err != nil {
		return nil, err
	}
	return iv, nil
}

func (s *interviewService) decorate(ctx context.Context, rows []models.Interview) []models.InterviewView {
	types := s.refs.Labels(ctx, models.RefInterviewTypes)
	exps := s.refs.Labels(ctx, models.RefExperienceLevels)
	diffs := s.refs.Labels(ctx, models.RefDifficultyLevels)

	out := make([]models.InterviewView, 0, len(rows))
	for _, iv := range rows {
		v := models.InterviewView{Interview: iv}
		if t, ok := types[iv.InterviewTypeID]; ok {
			v.InterviewType, v.TypeLabel = t.Value, t.Label
		}
		if iv.ExperienceLevelID != nil {
			v.ExperienceLabel = exps[*iv.ExperienceLevelID].Label
		}
		v.DifficultyLabel = diffs[iv.DifficultyLevelID].Label
		out = append(out, v)
	}
	return out
}

func (s *interviewService) submitPrompt(ctx context.Context, iv *models.Interview, accountName string, attempt int) error {
	if s.jobs == nil {
		return errors.New("no job publisher configured")
	}
	return s.jobs.SubmitPrompt(ctx, jobs.PromptJob{
		InterviewID: iv.ID,
		AccountID:   iv.AccountID,
		AccountName: accountName,
		Attempt:     attempt,
	})
}

func (s *interviewService) markPromptFailed(ctx context.Context, iv *models.Interview, from models.PromptStatus, cause error) {
	msg := "prompt generation could not be queued: " + cause.Error()
	s.log.WithError(cause).WithField("interview_id", iv.ID).Error("prompt submission failed")

	wctx, cancel := detached(ctx, s.timeout)
	defer cancel()
	ok, err := s.interviews.TransitionPrompt(wctx, iv.ID, []models.PromptStatus{from}, models.PromptFailed,
		map[string]any{"prompt_error": msg})
	if err != nil {
		s.log.WithError(err).WithField("interview_id", iv.ID).Error("failed to record prompt failure")
		return
	}
	if ok {
		iv.PromptStatus = models.PromptFailed
		iv.PromptError = &msg
		s.notify(ctx, jobs.StatusEvent{Type: "prompt_status", InterviewID: iv.ID, Status: string(models.PromptFailed), Message: msg})
	}
}

func (s *interviewService) notify(ctx context.Context, ev jobs.StatusEvent) {
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.log.WithError(err).WithField("interview_id", ev.InterviewID).Debug("status notify failed")
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || utils.CodeOf(err) == utils.CodeTimeout
}
