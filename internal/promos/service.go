package promos

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/corbeille/corbeille-backend/pkg/db/models"
	pkgerrors "github.com/corbeille/corbeille-backend/pkg/errors"
	"github.com/corbeille/corbeille-backend/pkg/logger"
)

// ValidateInput is a customer-facing check of a code.
type ValidateInput struct {
	Code          string
	OrderTotal    *decimal.Decimal
	CustomerEmail string
}

// RedeemInput records use of a code on a paid order.
type RedeemInput struct {
	Code           string
	CustomerEmail  string
	OrderID        uuid.UUID
	DiscountAmount decimal.Decimal
}

// RedeemResult reports what redemption actually persisted.
type RedeemResult struct {
	Counted  bool
	Recorded bool
}

type ServiceParams struct {
	Repository Repository
	Logger     *logger.Logger
	Clock      func() time.Time
}

type Service struct {
	repo  Repository
	logg  *logger.Logger
	clock func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, errors.New("promo repository required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{repo: params.Repository, logg: params.Logger, clock: clock}, nil
}

// Validate checks a code for the public endpoint. An empty code is a
// validation error and an unknown one is not found; every other rejection
// is returned as a Decision.
func (s *Service) Validate(ctx context.Context, input ValidateInput) (*Decision, error) {
	if strings.TrimSpace(input.Code) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code required")
	}
	decision, err := s.Check(ctx, input)
	if err != nil {
		return nil, err
	}
	if decision.Reason == ReasonInvalidCode {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invalid promo code")
	}
	return &decision, nil
}

// Check evaluates a code without distinguishing unknown codes from other rejections.
func (s *Service) Check(ctx context.Context, input ValidateInput) (Decision, error) {
	promo, err := s.repo.FindByCode(ctx, input.Code)
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load promo code")
	}
	facts := Facts{OrderTotal: input.OrderTotal, Now: s.clock()}
	if promo != nil && strings.TrimSpace(input.CustomerEmail) != "" {
		used, err := s.repo.HasRedemption(ctx, promo.ID, input.CustomerEmail)
		if err != nil {
			return Decision{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check promo redemption")
		}
		facts.AlreadyRedeemed = used
	}
	return Evaluate(promo, facts), nil
}

// Redeem appends a redemption and increments usage inside the caller's
// transaction. A customer's repeat use is neither recorded nor counted. The
// order is already paid, so a code that disappeared or hit its cap since
// checkout is logged and skipped.
func (s *Service) Redeem(ctx context.Context, tx *gorm.DB, input RedeemInput) (RedeemResult, error) {
	var result RedeemResult
	if tx == nil {
		return result, errors.New("transaction required")
	}
	repo := s.repo.WithTx(tx)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"promo_code": NormalizeCode(input.Code),
		"order_id":   input.OrderID.String(),
	})

	promo, err := repo.FindByCode(ctx, input.Code)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load promo code")
	}
	if promo == nil {
		s.logg.Warn(ctx, "promo.redeem.unknown_code")
		return result, nil
	}

	if strings.TrimSpace(input.CustomerEmail) != "" {
		recorded, err := repo.RecordRedemption(ctx, &models.PromoRedemption{
			PromoCodeID:    promo.ID,
			CustomerEmail:  input.CustomerEmail,
			OrderID:        input.OrderID,
			DiscountAmount: input.DiscountAmount,
		})
		if err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record promo redemption")
		}
		if !recorded {
			s.logg.Warn(ctx, "promo.redeem.already_recorded")
			return result, nil
		}
		result.Recorded = true
	}

	counted, err := repo.IncrementUsage(ctx, promo.ID)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment promo usage")
	}
	if !counted {
		s.logg.Warn(ctx, "promo.redeem.usage_limit_reached")
	}
	result.Counted = counted
	return result, nil
}
