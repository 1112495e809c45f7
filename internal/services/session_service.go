package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/mockinterview/internal/cache"
	"github.com/yoockh/mockinterview/internal/jobs"
	"github.com/yoockh/mockinterview/internal/models"
	"github.com/yoockh/mockinterview/internal/observability"
	"github.com/yoockh/mockinterview/internal/providers/tavus"
	pgrepo "github.com/yoockh/mockinterview/internal/repositories/postgres"
	"github.com/yoockh/mockinterview/internal/utils"
)

const (
	defaultMaxCallDuration = 3600
	defaultSessionLockTTL  = 60 * time.Second
	defaultConversationTTL = 2 * time.Hour
)

// SessionProvider is the remote video-session API.
type SessionProvider interface {
	Configured() bool
	CreateConversation(ctx context.Context, cfg models.SessionConfig) (*models.Conversation, error)
	EndConversation(ctx context.Context, conversationID string) error
	GetConversation(ctx context.Context, conversationID string) (*tavus.ConversationStatus, error)
}

// PersonaMapping binds an interview type to provider replica and persona ids.
type PersonaMapping struct {
	ReplicaID string
	PersonaID string
}

type SessionSettings struct {
	// keyed by interview type value, lower case
	Personas        map[string]PersonaMapping
	MaxCallDuration int
	LockTTL         time.Duration
	CacheTTL        time.Duration
	StoreTimeout    time.Duration
}

// StartOptions are caller overrides for a new session.
type StartOptions struct {
	PersonaID              string `json:"persona_id,omitempty"`
	ConversationalContext  string `json:"conversational_context,omitempty"`
	CustomGreeting         string `json:"custom_greeting,omitempty"`
	InitialConversationURL string `json:"initial_conversation_url,omitempty"`
}

type SessionService interface {
	Start(ctx context.Context, accountID, interviewID string, opts StartOptions) (*models.Conversation, error)
	End(ctx context.Context, accountID, conversationID string) error
	Status(ctx context.Context, accountID, conversationID string) (*tavus.ConversationStatus, error)
}

type SessionDeps struct {
	Provider   SessionProvider
	Interviews pgrepo.InterviewRepository
	Refs       ReferenceService
	Cache      cache.Cache
	Locker     cache.Locker
	Notifier   jobs.Notifier
	Metrics    *observability.Metrics
	Log        *logrus.Logger
	Settings   SessionSettings
	Now        func() time.Time
}

type sessionService struct {
	provider   SessionProvider
	interviews pgrepo.InterviewRepository
	refs       ReferenceService
	cache      cache.Cache
	locker     cache.Locker
	notifier   jobs.Notifier
	metrics    *observability.Metrics
	log        *logrus.Logger
	cfg        SessionSettings
	now        func() time.Time
}

func NewSessionService(d SessionDeps) SessionService {
	if d.Log == nil {
		d.Log = logrus.New()
	}
	if d.Notifier == nil {
		d.Notifier = jobs.NopNotifier{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Settings.MaxCallDuration <= 0 {
		d.Settings.MaxCallDuration = defaultMaxCallDuration
	}
	if d.Settings.LockTTL <= 0 {
		d.Settings.LockTTL = defaultSessionLockTTL
	}
	if d.Settings.CacheTTL <= 0 {
		d.Settings.CacheTTL = defaultConversationTTL
	}
	return &sessionService{
		provider:   d.Provider,
		interviews: d.Interviews,
		refs:       d.Refs,
		cache:      d.Cache,
		locker:     d.Locker,
		notifier:   d.Notifier,
		metrics:    d.Metrics,
		log:        d.Log,
		cfg:        d.Settings,
		now:        d.Now,
	}
}

func (s *sessionService) Start(ctx context.Context, accountID, interviewID string, opts StartOptions) (*models.Conversation, error) {
	const op = "SessionService.Start"

	if err := s.requireCredentials(op); err != nil {
		return nil, err
	}
	iv, err := s.loadInterview(ctx, op, accountID, interviewID)
	if err != nil {
		return nil, err
	}

	if iv.HasConversation() {
		return s.existing(ctx, iv), nil
	}
	if iv.Status != models.InterviewScheduled {
		return nil, utils.E(utils.CodeConflict, op, fmt.Sprintf("interview is %s", iv.Status), nil)
	}
	if u := strings.TrimSpace(opts.InitialConversationURL); u != "" {
		return s.adopt(ctx, op, iv, u)
	}

	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx, cache.SessionLockKey(iv.ID), s.cfg.LockTTL)
		switch {
		case err != nil:
			s.log.WithError(err).WithField("interview_id", iv.ID).Warn("session lock unavailable, relying on store guard")
		case !ok:
			return nil, utils.E(utils.CodeConflict, op, "a session is already being started for this interview", nil)
		default:
			defer func() {
				if err := unlock(context.WithoutCancel(ctx)); err != nil {
					s.log.WithError(err).WithField("interview_id", iv.ID).Debug("session unlock failed")
				}
			}()
			// a previous holder may have finished between our read and the lock
			if iv, err = s.loadInterview(ctx, op, accountID, interviewID); err != nil {
				return nil, err
			}
			if iv.HasConversation() {
				return s.existing(ctx, iv), nil
			}
		}
	}

	typ, err := s.refs.InterviewTypeByID(ctx, iv.InterviewTypeID)
	if err != nil {
		return nil, err
	}

	// a ready script counts as caller-supplied context
	if opts.PersonaID == "" && opts.ConversationalContext == "" && opts.CustomGreeting == "" &&
		iv.PromptStatus == models.PromptReady && iv.ConversationalContext != nil && iv.CustomGreeting != nil {
		opts.ConversationalContext = *iv.ConversationalContext
		opts.CustomGreeting = *iv.CustomGreeting
	}

	plan, err := selectPlan(typ.Value, opts, s.cfg.Personas)
	if err != nil {
		return nil, utils.E(utils.CodeConfiguration, op, err.Error(), err)
	}
	sc := plan.sessionConfig(iv.Role, s.now().UTC(), s.cfg.MaxCallDuration)

	conv, err := s.provider.CreateConversation(ctx, sc)
	if err != nil {
		return nil, providerErr(op, "failed to create conversation", err)
	}
	conv.InterviewID = iv.ID
	if conv.Status == "" {
		conv.Status = "active"
	}

	wctx, cancel := detached(ctx, s.cfg.StoreTimeout)
	defer cancel()

	attached, err := s.interviews.AttachConversation(wctx, iv.ID, *conv, sc.PersonaID)
	if err != nil {
		s.discard(wctx, conv.ConversationID)
		return nil, storeErr(op, "failed to record conversation", err)
	}
	if !attached {
		// another start won; keep theirs
		s.discard(wctx, conv.ConversationID)
		cur, err := s.interviews.GetByID(wctx, iv.ID)
		if err != nil {
			return nil, storeErr(op, "failed to reload interview", err)
		}
		return s.existing(ctx, cur), nil
	}

	s.remember(ctx, conv)
	s.metrics.SessionStarted()
	s.notify(ctx, jobs.StatusEvent{Type: "session", InterviewID: iv.ID, Status: "active", ConversationID: conv.ConversationID})
	s.log.WithFields(logrus.Fields{
		"interview_id":    iv.ID,
		"conversation_id": conv.ConversationID,
		"plan":            plan.kind.String(),
	}).Info("session started")
	return conv, nil
}

func (s *sessionService) End(ctx context.Context, accountID, conversationID string) error {
	const op = "SessionService.End"

	if err := s.requireCredentials(op); err != nil {
		return err
	}
	iv, err := s.ownedByConversation(ctx, op, accountID, conversationID)
	if err != nil {
		return err
	}

	ended := true
	if err := s.provider.EndConversation(ctx, conversationID); err != nil {
		if !tavus.IsAlreadyEnded(err) {
			return providerErr(op, "failed to end conversation", err)
		}
		ended = false
	}

	wctx, cancel := detached(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.interviews.MarkConversationEnded(wctx, iv.ID, s.now().UTC()); err != nil {
		s.log.WithError(err).WithField("conversation_id", conversationID).Warn("failed to record conversation end")
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, cache.ConversationKey(iv.ID), cache.ConversationByIDKey(conversationID)); err != nil {
			s.log.WithError(err).WithField("conversation_id", conversationID).Warn("failed to evict conversation cache")
		}
	}
	if ended {
		s.metrics.SessionEnded()
	}
	s.notify(ctx, jobs.StatusEvent{Type: "session", InterviewID: iv.ID, Status: "ended", ConversationID: conversationID})
	return nil
}

func (s *sessionService) Status(ctx context.Context, accountID, conversationID string) (*tavus.ConversationStatus, error) {
	const op = "SessionService.Status"

	if err := s.requireCredentials(op); err != nil {
		return nil, err
	}
	if _, err := s.ownedByConversation(ctx, op, accountID, conversationID); err != nil {
		return nil, err
	}
	st, err := s.provider.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, providerErr(op, "failed to fetch conversation", err)
	}
	return st, nil
}

func (s *sessionService) requireCredentials(op string) error {
	if s.provider == nil || !s.provider.Configured() {
		return utils.E(utils.CodeConfiguration, op, "session provider API key is not configured", tavus.ErrNoAPIKey)
	}
	return nil
}

func (s *sessionService) loadInterview(ctx context.Context, op, accountID, id string) (*models.Interview, error) {
	if accountID == "" || id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "account_id and interview id are required", nil)
	}
	sctx, cancel := bounded(ctx, s.cfg.StoreTimeout)
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

func (s *sessionService) ownedByConversation(ctx context.Context, op, accountID, conversationID string) (*models.Interview, error) {
	if accountID == "" || strings.TrimSpace(conversationID) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "account_id and conversation id are required", nil)
	}
	sctx, cancel := bounded(ctx, s.cfg.StoreTimeout)
	defer cancel()

	iv, err := s.interviews.GetByConversationID(sctx, conversationID)
	if err != nil {
		return nil, storeErr(op, "failed to find conversation", err)
	}
	if err := checkOwner(op, iv, accountID); err != nil {
		return nil, err
	}
	return iv, nil
}

// existing returns the conversation already bound to iv, cache first.
func (s *sessionService) existing(ctx context.Context, iv *models.Interview) *models.Conversation {
	if s.cache != nil {
		var c models.Conversation
		if hit, _ := s.cache.GetJSON(ctx, cache.ConversationKey(iv.ID), &c); hit && c.ConversationID == *iv.TavusConversationID {
			return &c
		}
	}
	c := &models.Conversation{
		ConversationID: *iv.TavusConversationID,
		Status:         iv.ConversationStatus(),
		CreatedAt:      iv.UpdatedAt,
		InterviewID:    iv.ID,
	}
	if iv.TavusConversationURL != nil {
		c.ConversationURL = *iv.TavusConversationURL
	}
	s.remember(ctx, c)
	return c
}

// adopt binds a conversation the caller already holds without calling the provider.
func (s *sessionService) adopt(ctx context.Context, op string, iv *models.Interview, rawURL string) (*models.Conversation, error) {
	id := conversationIDFromURL(rawURL)
	if id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "initial_conversation_url has no conversation id", nil)
	}
	conv := &models.Conversation{
		ConversationID:  id,
		ConversationURL: rawURL,
		Status:          "active",
		CreatedAt:       s.now().UTC(),
		InterviewID:     iv.ID,
	}

	wctx, cancel := detached(ctx, s.cfg.StoreTimeout)
	defer cancel()

	attached, err := s.interviews.AttachConversation(wctx, iv.ID, *conv, "")
	if err != nil {
		return nil, storeErr(op, "failed to record conversation", err)
	}
	if !attached {
		cur, err := s.interviews.GetByID(wctx, iv.ID)
		if err != nil {
			return nil, storeErr(op, "failed to reload interview", err)
		}
		return s.existing(ctx, cur), nil
	}
	s.remember(ctx, conv)
	return conv, nil
}

func (s *sessionService) remember(ctx context.Context, c *models.Conversation) {
	if s.cache == nil {
		return
	}
	for _, key := range []string{cache.ConversationKey(c.InterviewID), cache.ConversationByIDKey(c.ConversationID)} {
		if err := s.cache.SetJSON(ctx, key, c, s.cfg.CacheTTL); err != nil {
			s.log.WithError(err).WithField("key", key).Debug("conversation cache write failed")
		}
	}
}

func (s *sessionService) discard(ctx context.Context, conversationID string) {
	if err := s.provider.EndConversation(ctx, conversationID); err != nil && !tavus.IsAlreadyEnded(err) {
		s.log.WithError(err).WithField("conversation_id", conversationID).Warn("failed to end orphaned conversation")
	}
}

func (s *sessionService) notify(ctx context.Context, ev jobs.StatusEvent) {
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.log.WithError(err).WithField("interview_id", ev.InterviewID).Debug("status notify failed")
	}
}

type planKind int

const (
	planDefault planKind = iota
	planPersonaOverride
	planScripted
)

func (k planKind) String() string {
	switch k {
	case planPersonaOverride:
		return "persona_override"
	case planScripted:
		return "scripted"
	default:
		return "default"
	}
}

// sessionPlan is the resolved configuration strategy for one start.
type sessionPlan struct {
	kind      planKind
	replicaID string
	personaID string
	context   string
	greeting  string
}

func selectPlan(interviewType string, opts StartOptions, personas map[string]PersonaMapping) (sessionPlan, error) {
	m := personas[strings.ToLower(strings.TrimSpace(interviewType))]
	if m.ReplicaID == "" {
		return sessionPlan{}, fmt.Errorf("no replica configured for interview type %q", interviewType)
	}

	if p := strings.TrimSpace(opts.PersonaID); p != "" {
		return sessionPlan{kind: planPersonaOverride, replicaID: m.ReplicaID, personaID: p}, nil
	}
	if m.PersonaID == "" {
		return sessionPlan{}, fmt.Errorf("no persona configured for interview type %q", interviewType)
	}
	if opts.ConversationalContext != "" || opts.CustomGreeting != "" {
		return sessionPlan{
			kind:      planScripted,
			replicaID: m.ReplicaID,
			personaID: m.PersonaID,
			context:   opts.ConversationalContext,
			greeting:  opts.CustomGreeting,
		}, nil
	}
	return sessionPlan{kind: planDefault, replicaID: m.ReplicaID, personaID: m.PersonaID}, nil
}

func (p sessionPlan) sessionConfig(role string, at time.Time, maxCall int) models.SessionConfig {
	return models.SessionConfig{
		ReplicaID:        p.replicaID,
		PersonaID:        p.personaID,
		ConversationName: fmt.Sprintf("%s Interview - %s", role, at.Format(time.RFC3339)),
		Properties: models.SessionProperties{
			MaxCallDuration:       maxCall,
			EnableRecording:       true,
			EnableTranscription:   true,
			ApplyGreenscreen:      true,
			ConversationalContext: p.context,
			CustomGreeting:        p.greeting,
		},
	}
}

func conversationIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return ""
	}
	id := path.Base(strings.TrimRight(u.Path, "/"))
	if id == "." || id == "/" {
		return ""
	}
	return id
}

// providerErr keeps the provider's status and body verbatim in the message.
func providerErr(op, msg string, err error) error {
	var re *utils.RemoteError
	switch {
	case errors.Is(err, tavus.ErrNoAPIKey):
		return utils.E(utils.CodeConfiguration, op, "session provider API key is not configured", err)
	case errors.As(err, &re):
		return utils.E(utils.CodeRemoteService, op, fmt.Sprintf("%s: provider responded %d: %s", msg, re.StatusCode, re.Body), err)
	case errors.Is(err, context.DeadlineExceeded):
		return utils.E(utils.CodeTimeout, op, msg+": provider timed out", err)
	default:
		return utils.E(utils.CodeUnavailable, op, msg, err)
	}
}
