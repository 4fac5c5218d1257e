package engine

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/rule"
)

const (
	CodeNotActive          = "promotion_not_active"
	CodeNoApplicableAction = "no_applicable_action"
	CodeUsageLimitExceeded = "usage_limit_exceeded"
)

// Usage counts completed orders that used a promotion or one of its codes.
type Usage interface {
	UsageCount(ctx context.Context, promotionID snowflake.ID, excludedOrderIDs []snowflake.ID) (int64, error)
	CodeUsageCount(ctx context.Context, codeID snowflake.ID, excludedOrderIDs []snowflake.ID) (int64, error)
}

type Evaluator struct {
	lookup rule.Lookup
	usage  Usage
}

func NewEvaluator(lookup rule.Lookup, usage Usage) *Evaluator {
	return &Evaluator{lookup: lookup, usage: usage}
}

// Eligible decides whether promo applies to the promotable at now. Order level
// checks also enforce the usage limit, never counting the order itself.
func (e *Evaluator) Eligible(ctx context.Context, promo *Promotion, p orderdomain.Promotable, now time.Time) (domain.Eligibility, error) {
	if !promo.Active(now) {
		return ineligible(CodeNotActive, "promotion is not active"), nil
	}
	if !hasApplicableAction(promo, p) {
		return ineligible(CodeNoApplicableAction, "no action can discount this item"), nil
	}

	errs, err := e.rulesEligible(ctx, promo, p, now)
	if err != nil {
		return domain.Eligibility{}, err
	}
	if !errs.Empty() {
		return domain.Eligibility{Errors: errs}, nil
	}

	if p.Kind() == orderdomain.KindOrder {
		order := p.OwningOrder()
		exceeded, err := e.UsageLimitExceeded(ctx, promo.Record, []snowflake.ID{order.ID})
		if err != nil {
			return domain.Eligibility{}, err
		}
		if exceeded {
			return ineligible(CodeUsageLimitExceeded, "promotion usage limit reached"), nil
		}
	}
	return domain.Eligibility{Eligible: true}, nil
}

func (e *Evaluator) rulesEligible(ctx context.Context, promo *Promotion, p orderdomain.Promotable, now time.Time) (domain.EligibilityErrors, error) {
	opts := rule.Options{PromotionID: promo.Record.ID, Now: now, Lookup: e.lookup}

	var (
		applicable int
		passed     int
		errs       domain.EligibilityErrors
	)
	for _, r := range promo.Rules {
		if !r.Applicable(p) {
			continue
		}
		applicable++
		ruleErrs, err := r.Eligible(ctx, p, opts)
		if err != nil {
			return nil, err
		}
		if ruleErrs.Empty() {
			passed++
			continue
		}
		errs = append(errs, ruleErrs...)
	}

	if applicable == 0 {
		return nil, nil
	}
	switch promo.Record.MatchPolicy {
	case domain.MatchAny:
		if passed > 0 {
			return nil, nil
		}
	default:
		if passed == applicable {
			return nil, nil
		}
	}
	return errs, nil
}

func (e *Evaluator) UsageLimitExceeded(ctx context.Context, promo *domain.Promotion, excludedOrderIDs []snowflake.ID) (bool, error) {
	if promo.UsageLimit == nil || e.usage == nil {
		return false, nil
	}
	n, err := e.usage.UsageCount(ctx, promo.ID, excludedOrderIDs)
	if err != nil {
		return false, err
	}
	return n >= int64(*promo.UsageLimit), nil
}

func (e *Evaluator) CodeUsageLimitExceeded(ctx context.Context, promo *domain.Promotion, codeID snowflake.ID, excludedOrderIDs []snowflake.ID) (bool, error) {
	if promo.PerCodeUsageLimit == nil || e.usage == nil {
		return false, nil
	}
	n, err := e.usage.CodeUsageCount(ctx, codeID, excludedOrderIDs)
	if err != nil {
		return false, err
	}
	return n >= int64(*promo.PerCodeUsageLimit), nil
}

func hasApplicableAction(promo *Promotion, p orderdomain.Promotable) bool {
	item, ok := p.(orderdomain.Discountable)
	if !ok || p.Kind() == orderdomain.KindOrder {
		return len(promo.Actions) > 0
	}
	for _, a := range promo.Actions {
		if a.CanDiscount(item) {
			return true
		}
	}
	return false
}

func ineligible(code, message string) domain.Eligibility {
	return domain.Eligibility{Errors: domain.EligibilityErrors{{Code: code, Message: message}}}
}
