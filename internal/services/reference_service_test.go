package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/mockinterview/internal/models"
	"github.com/yoockh/mockinterview/internal/utils"
)

func TestReferenceResolveMatchesValueLabelAndID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)

	byLabel, err := e.refs.ResolveInterviewType(ctx, "technical")
	require.NoError(t, err)
	byValue, err := e.refs.ResolveInterviewType(ctx, "TECHNICAL")
	require.NoError(t, err)
	byID, err := e.refs.ResolveInterviewType(ctx, byLabel.ID)
	require.NoError(t, err)
	assert.Equal(t, byLabel.ID, byValue.ID)
	assert.Equal(t, byLabel.ID, byID.ID)

	exp, err := e.refs.ResolveExperience(ctx, "mid level (3-5 years)")
	require.NoError(t, err)
	assert.Equal(t, "mid", exp.Value)

	_, err = e.refs.ResolveDifficulty(ctx, "impossible")
	assert.True(t, utils.IsCode(err, utils.CodeReferenceNotFound))
}

func TestReferenceListsAreOrdered(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	levels := e.refs.ListDifficultyLevels(context.Background())
	require.Len(t, levels, 3)
	assert.Equal(t, []string{"easy", "medium", "hard"}, []string{levels[0].Value, levels[1].Value, levels[2].Value})
}

func TestReferenceDegradesToStaticCatalog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	refs := NewReferenceService(brokenRefs{}, nil, time.Second, nil)

	assert.Len(t, refs.ListInterviewTypes(ctx), 3)
	assert.Len(t, refs.ListExperienceLevels(ctx), 3)
	assert.Len(t, refs.ListDifficultyLevels(ctx), 3)

	typ, err := refs.ResolveInterviewType(ctx, "Behavioral")
	require.NoError(t, err)
	assert.Equal(t, models.FallbackInterviewTypes[1].ID, typ.ID)
}

func TestReferenceServesCachedCopyWhenStoreFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)

	// warm the cache from the real table, with an extra row the static catalog lacks
	require.NoError(t, e.db.Create(&models.InterviewType{ReferenceItem: models.ReferenceItem{
		ID: "0b7c6f1e-3a51-4f0e-9d1a-1f6c2a7e0009", Value: "case", Label: "Case Study", SortOrder: 4,
	}}).Error)
	require.Len(t, e.refs.ListInterviewTypes(ctx), 4)

	degraded := NewReferenceService(brokenRefs{}, e.cache, time.Second, nil)
	assert.Len(t, degraded.ListInterviewTypes(ctx), 4)
}
