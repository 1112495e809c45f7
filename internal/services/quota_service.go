package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/mockinterview/internal/models"
	"github.com/yoockh/mockinterview/internal/observability"
	pgrepo "github.com/yoockh/mockinterview/internal/repositories/postgres"
	"github.com/yoockh/mockinterview/internal/utils"
)

// QuotaService is the conversation-minutes ledger. It is the only writer of
// account_quotas; when ctx carries a transaction the ledger joins it.
type QuotaService interface {
	Reserve(ctx context.Context, accountID string, minutes int) error
	Release(ctx context.Context, accountID string, minutes int) error
	SetTotal(ctx context.Context, accountID string, total int) (*models.QuotaSnapshot, error)
	Get(ctx context.Context, accountID string) (*models.QuotaSnapshot, error)
}

type quotaService struct {
	quotas       pgrepo.QuotaRepository
	defaultTotal int
	timeout      time.Duration
	metrics      *observability.Metrics
	log          *logrus.Logger
}

func NewQuotaService(quotas pgrepo.QuotaRepository, defaultTotal int, timeout time.Duration, metrics *observability.Metrics, log *logrus.Logger) QuotaService {
	if log == nil {
		log = logrus.New()
	}
	return &quotaService{quotas: quotas, defaultTotal: defaultTotal, timeout: timeout, metrics: metrics, log: log}
}

func (s *quotaService) Reserve(ctx context.Context, accountID string, minutes int) error {
	const op = "QuotaService.Reserve"

	if accountID == "" || minutes <= 0 {
		return utils.E(utils.CodeInvalidArgument, op, "account_id is required and minutes must be > 0", nil)
	}
	ctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	if err := s.quotas.Ensure(ctx, accountID, s.defaultTotal); err != nil {
		return storeErr(op, "failed to provision quota", err)
	}
	ok, err := s.quotas.Reserve(ctx, accountID, minutes)
	if err != nil {
		s.metrics.QuotaReservation("error")
		return storeErr(op, "failed to reserve minutes", err)
	}
	if ok {
		s.metrics.QuotaReservation("accepted")
		return nil
	}

	s.metrics.QuotaReservation("insufficient")
	remaining := 0
	if q, err := s.quotas.Get(ctx, accountID); err == nil {
		remaining = q.Remaining()
	}
	short := &utils.QuotaShortfall{Remaining: remaining, Required: minutes}
	return utils.E(utils.CodeInsufficientQuota, op,
		fmt.Sprintf("not enough conversation minutes: %d remaining, %d required", remaining, minutes), short)
}

func (s *quotaService) Release(ctx context.Context, accountID string, minutes int) error {
	const op = "QuotaService.Release"

	if accountID == "" || minutes < 0 {
		return utils.E(utils.CodeInvalidArgument, op, "account_id is required and minutes must be >= 0", nil)
	}
	if minutes == 0 {
		return nil
	}
	ctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	if err := s.quotas.Release(ctx, accountID, minutes); err != nil {
		return storeErr(op, "failed to release minutes", err)
	}
	s.log.WithFields(logrus.Fields{"account_id": accountID, "minutes": minutes}).Debug("quota released")
	return nil
}

func (s *quotaService) SetTotal(ctx context.Context, accountID string, total int) (*models.QuotaSnapshot, error) {
	const op = "QuotaService.SetTotal"

	if accountID == "" || total < 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "account_id is required and total must be >= 0", nil)
	}
	ctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	if err := s.quotas.Ensure(ctx, accountID, s.defaultTotal); err != nil {
		return nil, storeErr(op, "failed to provision quota", err)
	}
	ok, err := s.quotas.SetTotal(ctx, accountID, total)
	if err != nil {
		return nil, storeErr(op, "failed to set total", err)
	}
	q, err := s.quotas.Get(ctx, accountID)
	if err != nil {
		return nil, storeErr(op, "failed to read quota", err)
	}
	if !ok {
		return nil, utils.E(utils.CodeConflict, op,
			fmt.Sprintf("total %d is below the %d minutes already in use", total, q.UsedMinutes), nil)
	}
	snap := q.Snapshot()
	return &snap, nil
}

func (s *quotaService) Get(ctx context.Context, accountID string) (*models.QuotaSnapshot, error) {
	const op = "QuotaService.Get"

	if accountID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "account_id is required", nil)
	}
	ctx, cancel := bounded(ctx, s.timeout)
	defer cancel()

	if err := s.quotas.Ensure(ctx, accountID, s.defaultTotal); err != nil {
		return nil, storeErr(op, "failed to provision quota", err)
	}
	q, err := s.quotas.Get(ctx, accountID)
	if err != nil {
		return nil, storeErr(op, "failed to read quota", err)
	}
	snap := q.Snapshot()
	return &snap, nil
}
