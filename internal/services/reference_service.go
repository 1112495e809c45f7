package services

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/mockinterview/internal/cache"
	"github.com/yoockh/mockinterview/internal/models"
	pgrepo "github.com/yoockh/mockinterview/internal/repositories/postgres"
	"github.com/yoockh/mockinterview/internal/utils"
)

const referenceCacheTTL = 10 * time.Minute

// ReferenceService serves the lookup catalogs. Lists never fail: when the
// store is unreachable the static catalogs are returned instead.
type ReferenceService interface {
	ListInterviewTypes(ctx context.Context) []models.ReferenceItem
	ListExperienceLevels(ctx context.Context) []models.ReferenceItem
	ListDifficultyLevels(ctx context.Context) []models.ReferenceItem

	// Resolve* accept an id, a value or a label, case-insensitively.
	ResolveInterviewType(ctx context.Context, key string) (*models.ReferenceItem, error)
	ResolveExperience(ctx context.Context, key string) (*models.ReferenceItem, error)
	ResolveDifficulty(ctx context.Context, key string) (*models.ReferenceItem, error)

	InterviewTypeByID(ctx context.Context, id string) (*models.ReferenceItem, error)
	Labels(ctx context.Context, kind models.ReferenceKind) map[string]models.ReferenceItem
}

type referenceService struct {
	refs    pgrepo.ReferenceRepository
	cache   cache.Cache
	timeout time.Duration
	log     *logrus.Logger
}

func NewReferenceService(refs pgrepo.ReferenceRepository, c cache.Cache, timeout time.Duration, log *logrus.Logger) ReferenceService {
	if log == nil {
		log = logrus.New()
	}
	return &referenceService{refs: refs, cache: c, timeout: timeout, log: log}
}

func (s *referenceService) ListInterviewTypes(ctx context.Context) []models.ReferenceItem {
	return s.list(ctx, models.RefInterviewTypes)
}

func (s *referenceService) ListExperienceLevels(ctx context.Context) []models.ReferenceItem {
	return s.list(ctx, models.RefExperienceLevels)
}

func (s *referenceService) ListDifficultyLevels(ctx context.Context) []models.ReferenceItem {
	return s.list(ctx, models.RefDifficultyLevels)
}

func (s *referenceService) ResolveInterviewType(ctx context.Context, key string) (*models.ReferenceItem, error) {
	return s.resolve(ctx, "ReferenceService.ResolveInterviewType", models.RefInterviewTypes, key)
}

func (s *referenceService) ResolveExperience(ctx context.Context, key string) (*models.ReferenceItem, error) {
	return s.resolve(ctx, "ReferenceService.ResolveExperience", models.RefExperienceLevels, key)
}

func (s *referenceService) ResolveDifficulty(ctx context.Context, key string) (*models.ReferenceItem, error) {
	return s.resolve(ctx, "ReferenceService.ResolveDifficulty", models.RefDifficultyLevels, key)
}

func (s *referenceService) InterviewTypeByID(ctx context.Context, id string) (*models.ReferenceItem, error) {
	const op = "ReferenceService.InterviewTypeByID"

	for _, it := range s.list(ctx, models.RefInterviewTypes) {
		if it.ID == id {
			out := it
			return &out, nil
		}
	}
	return nil, utils.E(utils.CodeReferenceNotFound, op, "interview type "+id+" does not exist", nil)
}

func (s *referenceService) Labels(ctx context.Context, kind models.ReferenceKind) map[string]models.ReferenceItem {
	items := s.list(ctx, kind)
	out := make(map[string]models.ReferenceItem, len(items))
	for _, it := range items {
		out[it.ID] = it
	}
	return out
}

func (s *referenceService) resolve(ctx context.Context, op string, kind models.ReferenceKind, key string) (*models.ReferenceItem, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, string(kind)+" is required", nil)
	}
	for _, it := range s.list(ctx, kind) {
		if it.ID == key || strings.EqualFold(it.Value, key) || strings.EqualFold(it.Label, key) {
			out := it
			return &out, nil
		}
	}
	return nil, utils.E(utils.CodeReferenceNotFound, op, "unknown "+string(kind)+" entry: "+key, nil)
}

func (s *referenceService) list(ctx context.Context, kind models.ReferenceKind) []models.ReferenceItem {
	key := cache.ReferenceKey(string(kind))
	if s.cache != nil {
		var cached []models.ReferenceItem
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.log.WithError(err).WithField("kind", kind).Debug("reference cache read failed")
		}
		if hit && len(cached) > 0 {
			return cached
		}
	}

	sctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	items, err := s.refs.List(sctx, kind)
	if err != nil || len(items) == 0 {
		s.log.WithError(err).WithField("kind", kind).Warn("reference data unavailable, serving static catalog")
		return models.Fallback(kind)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, items, referenceCacheTTL); err != nil {
			s.log.WithError(err).WithField("kind", kind).Debug("reference cache write failed")
		}
	}
	return items
}
