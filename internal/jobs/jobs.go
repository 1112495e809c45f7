package jobs

import (
	"context"
	"strconv"
	"time"
)

const (
	PromptStream   = "prompt:stream"
	FeedbackStream = "feedback:stream"
)

// PromptJob asks the worker pool to generate the interviewer script.
type PromptJob struct {
	InterviewID string
	AccountID   string
	AccountName string
	Attempt     int
}

// FeedbackJob hands an ended conversation to the feedback pipeline.
type FeedbackJob struct {
	InterviewID    string
	ConversationID string
	AccountID      string
}

// Publisher submits background work without waiting for its outcome.
type Publisher interface {
	SubmitPrompt(ctx context.Context, job PromptJob) error
	SubmitFeedback(ctx context.Context, job FeedbackJob) error
}

func (j PromptJob) values() map[string]any {
	return map[string]any{
		"interview_id": j.InterviewID,
		"account_id":   j.AccountID,
		"account_name": j.AccountName,
		"attempt":      strconv.Itoa(j.Attempt),
		"ts_unix":      strconv.FormatInt(time.Now().UTC().Unix(), 10),
	}
}

func (j FeedbackJob) values() map[string]any {
	return map[string]any{
		"interview_id":    j.InterviewID,
		"conversation_id": j.ConversationID,
		"account_id":      j.AccountID,
		"ts_unix":         strconv.FormatInt(time.Now().UTC().Unix(), 10),
	}
}

// PromptJobFromValues decodes a stream entry; ok is false when the entry
// lacks an interview id.
func PromptJobFromValues(v map[string]any) (PromptJob, bool) {
	getStr := func(k string) string {
		s, _ := v[k].(string)
		return s
	}
	job := PromptJob{
		InterviewID: getStr("interview_id"),
		AccountID:   getStr("account_id"),
		AccountName: getStr("account_name"),
	}
	job.Attempt, _ = strconv.Atoi(getStr("attempt"))
	return job, job.InterviewID != ""
}
