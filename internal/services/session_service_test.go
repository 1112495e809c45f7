package services

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/mockinterview/internal/cache"
	"github.com/yoockh/mockinterview/internal/models"
	"github.com/yoockh/mockinterview/internal/utils"
)

var testPersonas = map[string]PersonaMapping{
	"technical":  {ReplicaID: "R1", PersonaID: "P1"},
	"behavioral": {ReplicaID: "R2", PersonaID: "P2"},
}

func newSessions(e *env, p *fakeProvider, personas map[string]PersonaMapping) SessionService {
	return NewSessionService(SessionDeps{
		Provider:   p,
		Interviews: e.ivRepo,
		Refs:       e.refs,
		Cache:      e.cache,
		Locker:     e.cache,
		Log:        e.log,
		Settings:   SessionSettings{Personas: personas, StoreTimeout: time.Second},
		Now:        func() time.Time { return time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC) },
	})
}

func TestStartRequiresCredentials(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	p := &fakeProvider{}
	iv, err := e.interviews.Create(ctx, alice, "Alice", form(10))
	require.NoError(t, err)

	_, err = newSessions(e, p, testPersonas).Start(ctx, alice, iv.ID, StartOptions{})
	assert.True(t, utils.IsCode(err, utils.CodeConfiguration))
	assert.Zero(t, p.createCount())

	err = newSessions(e, p, testPersonas).End(ctx, alice, "conv-a")
	assert.True(t, utils.IsCode(err, utils.CodeConfiguration))
}

func TestStartDefaultPlanIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	p := &fakeProvider{apiKey: "k"}
	svc := newSessions(e, p, testPersonas)
	iv, err := e.interviews.Create(ctx, alice, "Alice", form(10))
	require.NoError(t, err)

	first, err := svc.Start(ctx, alice, iv.ID, StartOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, p.createCount())

	cfg := p.created[0]
	assert.Equal(t, "R1", cfg.ReplicaID)
	assert.Equal(t, "P1", cfg.PersonaID)
	assert.Equal(t, "Backend Engineer Interview - 2026-10-17T10:00:00Z", cfg.ConversationName)
	assert.Equal(t, 3600, cfg.Properties.MaxCallDuration)
	assert.True(t, cfg.Properties.EnableRecording)
	assert.True(t, cfg.Properties.EnableTranscription)
	assert.True(t, cfg.Properties.ApplyGreenscreen)
	assert.Empty(t, cfg.Properties.ConversationalContext)

	second, err := svc.Start(ctx, alice, iv.ID, StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, first.ConversationURL, second.ConversationURL)
	assert.Equal(t, 1, p.createCount())

	stored, err := e.ivRepo.GetByID(ctx, iv.ID)
	require.NoError(t, err)
	require.True(t, stored.HasConversation())
	assert.Equal(t, first.ConversationID, *stored.TavusConversationID)
	assert.Equal(t, "P1", *stored.TavusPersonaID)
}

func TestStartPersonaOverrideUsesConfiguredReplica(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	p := &fakeProvider{apiKey: "k"}
	iv, err := e.interviews.Create(ctx, alice, "Alice", form(10))
	require.NoError(t, err)

	_, err = newSessions(e, p, testPersonas).Start(ctx, alice, iv.ID, StartOptions{PersonaID: "P9"})
	require.NoError(t, err)
	require.Equal(t, 1, p.createCount())
	assert.Equal(t, "R1", p.created[0].ReplicaID)
	assert.Equal(t, "P9", p.created[0].PersonaID)
}

func TestStartUsesGeneratedScriptWhenReady(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	p := &fakeProvider{apiKey: "k"}
	iv, err := e.interviews.Create(ctx, alice, "Alice", form(10))
	require.NoError(t, err)
	_, err = e.ivRepo.TransitionPrompt(ctx, iv.ID, []models.PromptStatus{models.PromptPending}, models.PromptReady,
		map[string]any{"conversational_context": "You are interviewing Alice.", "custom_greeting": "Hi Alice!"})
	require.NoError(t, err)

	_, err = newSessions(e, p, testPersonas).Start(ctx, alice, iv.ID, StartOptions{})
	require.NoError(t, err)
	props := p.created[0].Properties
	assert.Equal(t, "You are interviewing Alice.", props.ConversationalContext)
	assert.Equal(t, "Hi Alice!", props.CustomGreeting)
	assert.Equal(t, "P1", p.created[0].PersonaID)
}

func TestStartWithoutMappingIsConfigurationError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	p := &fakeProvider{apiKey: "k"}
	f := form(10)
	f.InterviewType = "mixed"
	iv, err := e.interviews.Create(ctx, alice, "Alice", f)
	require.NoError(t, err)

	_, err = newSessions(e, p, testPersonas).Start(ctx, alice, iv.ID, StartOptions{})
	assert.True(t, utils.IsCode(err, utils.CodeConfiguration))
	assert.Zero(t, p.createCount())
}

func TestStartAdoptsInitialURL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	p := &fakeProvider{apiKey: "k"}
	iv, err := e.interviews.Create(ctx, alice, "Alice", form(10))
	require.NoError(t, err)

	conv, err := newSessions(e, p, testPersonas).Start(ctx, alice, iv.ID,
		StartOptions{InitialConversationURL: "https://tavus.daily.co/c0ffee42"})
	require.NoError(t, err)
	assert.Equal(t, "c0ffee42", conv.ConversationID)
	assert.Equal(t, "https://tavus.daily.co/c0ffee42", conv.ConversationURL)
	assert.Zero(t, p.createCount())

	stored, err := e.ivRepo.GetByConversationID(ctx, "c0ffee42")
	require.NoError(t, err)
	assert.Equal(t, iv.ID, stored.ID)
}

func TestStartWhileLockedIsConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	p := &fakeProvider{apiKey: "k"}
	iv, err := e.interviews.Create(ctx, alice, "Alice", form(10))
	require.NoError(t, err)

	_, ok, err := e.cache.TryLock(ctx, cache.SessionLockKey(iv.ID), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = newSessions(e, p, testPersonas).Start(ctx, alice, iv.ID, StartOptions{})
	assert.True(t, utils.IsCode(err, utils.CodeConflict))
	assert.Zero(t, p.createCount())
}

func TestConcurrentStartsYieldOneConversation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	p := &fakeProvider{apiKey: "k"}
	svc := newSessions(e, p, testPersonas)
	iv, err := e.interviews.Create(ctx, alice, "Alice", form(10))
	require.NoError(t, err)

	var wg sync.WaitGroup
	convs := make([]*models.Conversation, 4)
	errs := make([]error, 4)
	for i := range convs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			convs[i], errs[i] = svc.Start(ctx, alice, iv.ID, StartOptions{})
		}(i)
	}
	wg.Wait()

	stored, err := e.ivRepo.GetByID(ctx, iv.ID)
	require.NoError(t, err)
	require.True(t, stored.HasConversation())
	for i := range convs {
		if errs[i] != nil {
			assert.True(t, utils.IsCode(errs[i], utils.CodeConflict), errs[i])
			continue
		}
		assert.Equal(t, *stored.TavusConversationID, convs[i].ConversationID)
	}
	assert.Equal(t, 1, p.createCount())
}

func TestStartRejectsFinishedInterviews(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	p := &fakeProvider{apiKey: "k"}
	iv, err := e.interviews.Create(ctx, alice, "Alice", form(10))
	require.NoError(t, err)
	_, err = e.interviews.Cancel(ctx, alice, iv.ID)
	require.NoError(t, err)

	_, err = newSessions(e, p, testPersonas).Start(ctx, alice, iv.ID, StartOptions{})
	assert.True(t, utils.IsCode(err, utils.CodeConflict))
}

func TestStartRejectsAdoptionForCanceledInterview(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	p := &fakeProvider{apiKey: "k"}
	iv, err := e.interviews.Create(ctx, alice, "Alice", form(10))
	require.NoError(t, err)
	_, err = e.interviews.Cancel(ctx, alice, iv.ID)
	require.NoError(t, err)

	_, err = newSessions(e, p, testPersonas).Start(ctx, alice, iv.ID,
		StartOptions{InitialConversationURL: "https://tavus.daily.co/c0ffee42"})
	assert.True(t, utils.IsCode(err, utils.CodeConflict))

	stored, err := e.ivRepo.GetByID(ctx, iv.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasConversation())
}

func TestEndIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	p := &fakeProvider{apiKey: "k"}
	svc := newSessions(e, p, testPersonas)
	iv, err := e.interviews.Create(ctx, alice, "Alice", form(10))
	require.NoError(t, err)
	conv, err := svc.Start(ctx, alice, iv.ID, StartOptions{})
	require.NoError(t, err)
	require.True(t, e.mr.Exists(cache.ConversationKey(iv.ID)))

	require.NoError(t, svc.End(ctx, alice, conv.ConversationID))
	assert.False(t, e.mr.Exists(cache.ConversationKey(iv.ID)))
	assert.False(t, e.mr.Exists(cache.ConversationByIDKey(conv.ConversationID)))

	p.endErr = &utils.RemoteError{Service: "tavus", StatusCode: http.StatusNotFound, Body: `{"message":"not found"}`}
	require.NoError(t, svc.End(ctx, alice, conv.ConversationID))

	p.endErr = &utils.RemoteError{Service: "tavus", StatusCode: http.StatusBadRequest, Body: "Conversation has already ended"}
	require.NoError(t, svc.End(ctx, alice, conv.ConversationID))
}

func TestStartAfterEndReportsEndedConversation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	p := &fakeProvider{apiKey: "k"}
	svc := newSessions(e, p, testPersonas)
	iv, err := e.interviews.Create(ctx, alice, "Alice", form(10))
	require.NoError(t, err)
	conv, err := svc.Start(ctx, alice, iv.ID, StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, "active", conv.Status)

	require.NoError(t, svc.End(ctx, alice, conv.ConversationID))
	stored, err := e.ivRepo.GetByID(ctx, iv.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ConversationEndedAt)

	again, err := svc.Start(ctx, alice, iv.ID, StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, conv.ConversationID, again.ConversationID)
	assert.Equal(t, "ended", again.Status)
	assert.Equal(t, 1, p.createCount())
}

func TestEndSurfacesProviderFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	p := &fakeProvider{apiKey: "k"}
	svc := newSessions(e, p, testPersonas)
	iv, err := e.interviews.Create(ctx, alice, "Alice", form(10))
	require.NoError(t, err)
	conv, err := svc.Start(ctx, alice, iv.ID, StartOptions{})
	require.NoError(t, err)

	p.endErr = &utils.RemoteError{Service: "tavus", StatusCode: http.StatusInternalServerError, Body: "upstream exploded"}
	err = svc.End(ctx, alice, conv.ConversationID)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeRemoteService))
	assert.True(t, strings.Contains(err.Error(), "500"))
	assert.True(t, strings.Contains(err.Error(), "upstream exploded"))

	assert.True(t, utils.IsCode(svc.End(ctx, bob, conv.ConversationID), utils.CodeForbidden))
	assert.True(t, utils.IsCode(svc.End(ctx, alice, "nope"), utils.CodeNotFound))
}

func TestStartSurfacesProviderStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	p := &fakeProvider{apiKey: "k", createErr: &utils.RemoteError{Service: "tavus", StatusCode: http.StatusUnauthorized, Body: "invalid api key"}}
	iv, err := e.interviews.Create(ctx, alice, "Alice", form(10))
	require.NoError(t, err)

	_, err = newSessions(e, p, testPersonas).Start(ctx, alice, iv.ID, StartOptions{})
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeRemoteService))
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid api key")

	stored, err := e.ivRepo.GetByID(ctx, iv.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasConversation())
}

func TestConversationIDFromURL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc", conversationIDFromURL("https://tavus.daily.co/abc"))
	assert.Equal(t, "abc", conversationIDFromURL("https://tavus.daily.co/abc/"))
	assert.Equal(t, "", conversationIDFromURL("https://tavus.daily.co"))
}
