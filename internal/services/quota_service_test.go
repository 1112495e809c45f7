package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/mockinterview/internal/utils"
)

func TestQuotaGetProvisionsDefault(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	snap, err := e.quota.Get(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, 60, snap.TotalMinutes)
	assert.Equal(t, 0, snap.UsedMinutes)
	assert.Equal(t, 60, snap.RemainingMinutes)
}

func TestQuotaReserveReportsShortfall(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	e.setTotal(t, alice, 30)

	require.NoError(t, e.quota.Reserve(ctx, alice, 20))
	err := e.quota.Reserve(ctx, alice, 20)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeInsufficientQuota))

	var short *utils.QuotaShortfall
	require.True(t, errors.As(err, &short))
	assert.Equal(t, 10, short.Remaining)
	assert.Equal(t, 20, short.Required)
	assert.Equal(t, 20, e.used(t, alice))
}

func TestQuotaReleaseFloorsAtZero(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)

	require.NoError(t, e.quota.Reserve(ctx, alice, 10))
	require.NoError(t, e.quota.Release(ctx, alice, 25))
	assert.Equal(t, 0, e.used(t, alice))
}

func TestQuotaSetTotalBelowUsedIsConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)

	require.NoError(t, e.quota.Reserve(ctx, alice, 40))
	_, err := e.quota.SetTotal(ctx, alice, 30)
	assert.True(t, utils.IsCode(err, utils.CodeConflict))

	snap, err := e.quota.SetTotal(ctx, alice, 120)
	require.NoError(t, err)
	assert.Equal(t, 80, snap.RemainingMinutes)
}

func TestQuotaRejectsBadArguments(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)

	assert.True(t, utils.IsCode(e.quota.Reserve(ctx, alice, 0), utils.CodeInvalidArgument))
	assert.True(t, utils.IsCode(e.quota.Reserve(ctx, "", 5), utils.CodeInvalidArgument))
	assert.True(t, utils.IsCode(e.quota.Release(ctx, alice, -1), utils.CodeInvalidArgument))
	_, err := e.quota.SetTotal(ctx, alice, -5)
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
}
