package checkout

import (
	"errors"

	promodomain "github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
)

const CodePromotionTotalChanged = "promotion_total_changed_before_complete"

var (
	ErrCouponCodeNotFound       = errors.New("coupon_code_not_found")
	ErrCouponCodeExpired        = errors.New("coupon_code_expired")
	ErrCouponCodeNotStarted     = errors.New("coupon_code_not_started")
	ErrCouponCodeAlreadyPresent = errors.New("coupon_code_already_present")
	ErrCouponCodeNotPresent     = errors.New("coupon_code_not_present")
	ErrCouponCodeMaxUsage       = errors.New("coupon_code_max_usage")
	ErrCouponCodeNotEligible    = errors.New("coupon_code_not_eligible")
	ErrCouponAttemptsExceeded   = errors.New("coupon_attempts_exceeded")
)

// NotEligibleError carries the rule failures that kept a code off the order.
type NotEligibleError struct {
	Errors promodomain.EligibilityErrors
}

func (e *NotEligibleError) Error() string {
	return ErrCouponCodeNotEligible.Error()
}

func (e *NotEligibleError) Unwrap() error {
	return ErrCouponCodeNotEligible
}
