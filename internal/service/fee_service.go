package service

import (
	"github.com/johniman211/payssd-sub003/internal/core/domain"
	"github.com/johniman211/payssd-sub003/pkg/apperror"
)

// Fee schedule in basis points and fixed minor-unit amounts. Amounts are
// int64 minor units, so "rounded to 2 decimals" is exact integer rounding.
const (
	platformFeeBps   = 250 // 2.5%
	platformFeeFixed = 500 // 5.00

	bankTransferFeeBps = 150 // 1.5%
	bankTransferFeeMin = 2500

	mobileMoneyFeeBps = 200 // 2%
	mobileMoneyFeeMin = 1500

	cashPickupFeeBps = 250 // 2.5%
	cashPickupFeeMin = 2000
)

// StandardFeeService implements ports.FeeService with the platform's fixed
// fee schedule. Pure, no side effects.
type StandardFeeService struct{}

// NewFeeService creates a new StandardFeeService.
func NewFeeService() *StandardFeeService {
	return &StandardFeeService{}
}

// TransactionFees computes the platform fee: 2.5% of the amount plus a fixed
// 5.00. The provider fee is not reported by any gateway yet and stays 0, so
// total fees currently equal the platform fee.
func (s *StandardFeeService) TransactionFees(amount int64) domain.FeeBreakdown {
	f := domain.FeeBreakdown{
		PlatformFee: mulBps(amount, platformFeeBps) + platformFeeFixed,
		ProviderFee: 0,
	}
	f.Recompute(amount)
	return f
}

// PayoutFees computes the per-method processing fee with its floor.
func (s *StandardFeeService) PayoutFees(method domain.PayoutMethod, amount int64) (domain.PayoutFees, error) {
	var fee int64
	switch method {
	case domain.PayoutMethodBankTransfer:
		fee = maxInt64(mulBps(amount, bankTransferFeeBps), bankTransferFeeMin)
	case domain.PayoutMethodMobileMoney:
		fee = maxInt64(mulBps(amount, mobileMoneyFeeBps), mobileMoneyFeeMin)
	case domain.PayoutMethodCashPickup:
		fee = maxInt64(mulBps(amount, cashPickupFeeBps), cashPickupFeeMin)
	default:
		return domain.PayoutFees{}, apperror.ErrInvalidPayoutMethod(string(method))
	}

	f := domain.PayoutFees{ProcessingFee: fee}
	f.Recompute(amount)
	return f, nil
}

// mulBps multiplies amount by basis points, rounding half up to the nearest
// minor unit.
func mulBps(amount int64, bps int64) int64 {
	return (amount*bps + 5000) / 10000
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
