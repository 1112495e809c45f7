package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/mockinterview/internal/cache"
	"github.com/yoockh/mockinterview/internal/jobs"
	"github.com/yoockh/mockinterview/internal/models"
	"github.com/yoockh/mockinterview/internal/providers/tavus"
	pgrepo "github.com/yoockh/mockinterview/internal/repositories/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	alice = "a11ce000-0000-4000-8000-000000000001"
	bob   = "b0b00000-0000-4000-8000-000000000002"
)

type fakePublisher struct {
	mu       sync.Mutex
	prompts  []jobs.PromptJob
	feedback []jobs.FeedbackJob
	err      error
}

func (p *fakePublisher) SubmitPrompt(_ context.Context, job jobs.PromptJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.prompts = append(p.prompts, job)
	return nil
}

func (p *fakePublisher) SubmitFeedback(_ context.Context, job jobs.FeedbackJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.feedback = append(p.feedback, job)
	return nil
}

func (p *fakePublisher) promptCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

type brokenRefs struct{}

func (brokenRefs) List(context.Context, models.ReferenceKind) ([]models.ReferenceItem, error) {
	return nil, errors.New("connection refused")
}

func (brokenRefs) Seed(context.Context, models.ReferenceKind, []models.ReferenceItem) error {
	return errors.New("connection refused")
}

type fakeProvider struct {
	mu        sync.Mutex
	apiKey    string
	created   []models.SessionConfig
	ended     []string
	createErr error
	endErr    error
}

func (f *fakeProvider) Configured() bool { return f.apiKey != "" }

func (f *fakeProvider) CreateConversation(_ context.Context, cfg models.SessionConfig) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, cfg)
	id := "conv-" + string(rune('a'+len(f.created)-1))
	return &models.Conversation{
		ConversationID:  id,
		ConversationURL: "https://tavus.daily.co/" + id,
		Status:          "active",
		CreatedAt:       time.Now().UTC(),
	}, nil
}

func (f *fakeProvider) EndConversation(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, id)
	return f.endErr
}

func (f *fakeProvider) GetConversation(_ context.Context, id string) (*tavus.ConversationStatus, error) {
	return &tavus.ConversationStatus{ConversationID: id, Status: "active"}, nil
}

func (f *fakeProvider) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type env struct {
	db         *gorm.DB
	mr         *miniredis.Miniredis
	cache      *cache.RedisCache
	quotaRepo  pgrepo.QuotaRepository
	ivRepo     pgrepo.InterviewRepository
	pub        *fakePublisher
	quota      QuotaService
	refs       ReferenceService
	interviews InterviewService
	log        *logrus.Logger
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, pgrepo.Migrate(context.Background(), db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	e := &env{
		db:        db,
		mr:        mr,
		cache:     cache.NewRedisCache(rdb),
		quotaRepo: pgrepo.NewQuotaRepo(db),
		ivRepo:    pgrepo.NewInterviewRepo(db),
		pub:       &fakePublisher{},
		log:       log,
	}
	e.quota = NewQuotaService(e.quotaRepo, 60, time.Second, nil, log)
	e.refs = NewReferenceService(pgrepo.NewReferenceRepo(db), e.cache, time.Second, log)
	e.interviews = NewInterviewService(InterviewDeps{
		Tx:         pgrepo.NewTransactor(db),
		Interviews: e.ivRepo,
		Quota:      e.quota,
		Refs:       e.refs,
		Jobs:       e.pub,
		Cache:      e.cache,
		Log:        log,
		Timeout:    5 * time.Second,
	})
	return e
}

func (e *env) setTotal(t *testing.T, account string, total int) {
	t.Helper()
	_, err := e.quota.SetTotal(context.Background(), account, total)
	require.NoError(t, err)
}

func (e *env) used(t *testing.T, account string) int {
	t.Helper()
	q, err := e.quota.Get(context.Background(), account)
	require.NoError(t, err)
	return q.UsedMinutes
}

func form(minutes int) models.InterviewForm {
	return models.InterviewForm{
		Role:            "Backend Engineer",
		Company:         "Acme",
		InterviewType:   "Technical",
		Experience:      "Mid Level (3-5 years)",
		Difficulty:      "medium",
		DurationMinutes: minutes,
		ScheduledAt:     time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC),
	}
}
