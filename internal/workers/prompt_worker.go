package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/mockinterview/internal/jobs"
	"github.com/yoockh/mockinterview/internal/models"
	"github.com/yoockh/mockinterview/internal/observability"
	"github.com/yoockh/mockinterview/internal/providers/llm"
	pgrepo "github.com/yoockh/mockinterview/internal/repositories/postgres"
	"github.com/yoockh/mockinterview/internal/services"
	"github.com/yoockh/mockinterview/internal/utils"
)

// PromptWorkerPool consumes prompt jobs and writes the interviewer script
// (conversational context and greeting) back onto the interview.
type PromptWorkerPool struct {
	Redis      *redis.Client
	Interviews pgrepo.InterviewRepository
	Refs       services.ReferenceService
	LLM        llm.Provider
	Notifier   jobs.Notifier
	Metrics    *observability.Metrics
	NumWorkers int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
	// per job LLM deadline
	Timeout time.Duration
	// per call store deadline
	StoreTimeout time.Duration
	// unacked jobs idle this long are claimed again
	ReclaimIdle time.Duration
}

func (p *PromptWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Interviews == nil || p.Refs == nil || p.LLM == nil {
		return errors.New("PromptWorkerPool missing dependency: Redis/Interviews/Refs/LLM must be set")
	}
	p.defaults()

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	p.Logger.WithFields(logrus.Fields{"stream": p.Stream, "workers": p.NumWorkers}).Info("prompt workers started")
	return nil
}

func (p *PromptWorkerPool) defaults() {
	if p.Stream == "" {
		p.Stream = jobs.PromptStream
	}
	if p.Group == "" {
		p.Group = "prompt-workers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 4
	}
	if p.Timeout <= 0 {
		p.Timeout = 60 * time.Second
	}
	if p.StoreTimeout <= 0 {
		p.StoreTimeout = 10 * time.Second
	}
	if p.ReclaimIdle <= 0 {
		p.ReclaimIdle = 2*p.Timeout + p.StoreTimeout
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}
	if p.Notifier == nil {
		p.Notifier = jobs.NopNotifier{}
	}
}

func (p *PromptWorkerPool) runConsumer(ctx context.Context, consumer string) {
	sweep := time.NewTicker(p.ReclaimIdle / 2)
	defer sweep.Stop()
	block := min(5*time.Second, p.ReclaimIdle/2)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			p.reclaim(ctx, consumer)
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    5,
			Block:    block,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				continue
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
			}
		}
	}
}

// reclaim takes over jobs left unacked by a store failure or a dead consumer.
func (p *PromptWorkerPool) reclaim(ctx context.Context, consumer string) {
	start := "0-0"
	for {
		msgs, next, err := p.Redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   p.Stream,
			Group:    p.Group,
			Consumer: consumer,
			MinIdle:  p.ReclaimIdle,
			Start:    start,
			Count:    10,
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				p.Logger.WithError(err).Warn("prompt job reclaim failed")
			}
			return
		}
		for _, msg := range msgs {
			p.handleMsg(ctx, msg)
		}
		if next == "0-0" || next == "" {
			return
		}
		start = next
	}
}

// handleMsg acks unless the job hit a store error; those stay pending for reclaim.
func (p *PromptWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	job, ok := jobs.PromptJobFromValues(msg.Values)
	if !ok {
		p.Logger.WithField("redis_id", msg.ID).Warn("dropping prompt job without interview id")
	} else if err := p.process(ctx, job); err != nil {
		p.Logger.WithError(err).WithFields(logrus.Fields{"redis_id": msg.ID, "interview_id": job.InterviewID}).
			Warn("prompt job left pending")
		return
	}
	_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
}

type script struct {
	ConversationalContext string `json:"conversational_context"`
	CustomGreeting        string `json:"custom_greeting"`
}

// process returns an error only when the store failed and the job must be
// delivered again; model failures are recorded on the interview.
func (p *PromptWorkerPool) process(ctx context.Context, job jobs.PromptJob) error {
	log := p.Logger.WithFields(logrus.Fields{"interview_id": job.InterviewID, "attempt": job.Attempt})

	sctx, scancel := context.WithTimeout(ctx, p.StoreTimeout)
	iv, err := p.Interviews.GetByID(sctx, job.InterviewID)
	scancel()
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			log.Info("interview gone, skipping prompt job")
			return nil
		}
		log.WithError(err).Error("failed to load interview")
		return err
	}

	sctx, scancel = context.WithTimeout(ctx, p.StoreTimeout)
	claimed, err := p.Interviews.TransitionPrompt(sctx, iv.ID,
		[]models.PromptStatus{models.PromptPending, models.PromptGenerating}, models.PromptGenerating,
		map[string]any{"prompt_error": nil, "updated_at": time.Now().UTC()})
	scancel()
	if err != nil {
		log.WithError(err).Error("failed to claim prompt job")
		return err
	}
	if !claimed {
		log.Debug("prompt already settled, skipping")
		return nil
	}
	p.notify(ctx, iv.ID, models.PromptGenerating, "")

	lctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	raw, err := llm.Collect(lctx, p.LLM, p.buildPrompt(ctx, iv, job.AccountName))
	var out script
	if err == nil {
		out, err = parseScript(raw)
	}
	if err != nil {
		log.WithError(err).Error("prompt generation failed")
		p.Metrics.PromptJob("failed")
		return p.fail(ctx, iv.ID, "prompt generation failed: "+err.Error())
	}

	sctx, scancel = context.WithTimeout(ctx, p.StoreTimeout)
	ok, err := p.Interviews.TransitionPrompt(sctx, iv.ID,
		[]models.PromptStatus{models.PromptGenerating}, models.PromptReady,
		map[string]any{
			"conversational_context": out.ConversationalContext,
			"custom_greeting":        out.CustomGreeting,
			"prompt_error":           nil,
			"updated_at":             time.Now().UTC(),
		})
	scancel()
	if err != nil {
		log.WithError(err).Error("failed to store generated prompt")
		p.Metrics.PromptJob("failed")
		// failed is retryable by the caller; generating is not
		return p.fail(ctx, iv.ID, "generated prompt could not be stored: "+err.Error())
	}
	if !ok {
		log.Debug("prompt settled by another worker")
		return nil
	}
	p.Metrics.PromptJob("ready")
	p.notify(ctx, iv.ID, models.PromptReady, "")
	log.Info("prompt ready")
	return nil
}

// fail moves generating to failed. The write is detached from the pool
// context so shutdown does not strand the interview in generating.
func (p *PromptWorkerPool) fail(ctx context.Context, interviewID, msg string) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.StoreTimeout)
	defer cancel()

	ok, err := p.Interviews.TransitionPrompt(wctx, interviewID,
		[]models.PromptStatus{models.PromptGenerating}, models.PromptFailed,
		map[string]any{"prompt_error": msg, "updated_at": time.Now().UTC()})
	if err != nil {
		p.Logger.WithError(err).WithField("interview_id", interviewID).Error("failed to record prompt failure")
		return err
	}
	if ok {
		p.notify(ctx, interviewID, models.PromptFailed, msg)
	}
	return nil
}

func (p *PromptWorkerPool) buildPrompt(ctx context.Context, iv *models.Interview, candidate string) string {
	typ := p.Refs.Labels(ctx, models.RefInterviewTypes)[iv.InterviewTypeID].Label
	diff := p.Refs.Labels(ctx, models.RefDifficultyLevels)[iv.DifficultyLevelID].Label
	exp := "unspecified"
	if iv.ExperienceLevelID != nil {
		if l := p.Refs.Labels(ctx, models.RefExperienceLevels)[*iv.ExperienceLevelID].Label; l != "" {
			exp = l
		}
	}
	if strings.TrimSpace(candidate) == "" {
		candidate = "the candidate"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Prepare a %d minute %s mock interview for the %s role at %s.\n",
		iv.DurationMinutes, strings.ToLower(typ), iv.Role, iv.Company)
	fmt.Fprintf(&b, "Candidate: %s. Experience: %s. Difficulty: %s.\n", candidate, exp, diff)
	b.WriteString("Return JSON with two string fields:\n")
	b.WriteString(`"conversational_context": instructions for the interviewer covering focus areas, question flow and tone;` + "\n")
	b.WriteString(`"custom_greeting": the first sentence the interviewer says, addressing the candidate by name.`)
	return b.String()
}

// parseScript accepts a bare JSON object, optionally wrapped in a code fence.
func parseScript(raw string) (script, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var out script
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return script{}, fmt.Errorf("model returned invalid JSON: %w", err)
	}
	out.ConversationalContext = strings.TrimSpace(out.ConversationalContext)
	out.CustomGreeting = strings.TrimSpace(out.CustomGreeting)
	if out.ConversationalContext == "" || out.CustomGreeting == "" {
		return script{}, errors.New("model response is missing conversational_context or custom_greeting")
	}
	return out, nil
}

func (p *PromptWorkerPool) notify(ctx context.Context, interviewID string, st models.PromptStatus, msg string) {
	ev := jobs.StatusEvent{Type: "prompt_status", InterviewID: interviewID, Status: string(st), Message: msg}
	if err := p.Notifier.Notify(ctx, ev); err != nil {
		p.Logger.WithError(err).WithField("interview_id", interviewID).Debug("status notify failed")
	}
}
