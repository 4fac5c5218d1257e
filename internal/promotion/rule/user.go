package rule

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
)

var errLookupRequired = errors.New("rule lookup not configured")

// UserLoggedIn requires the order to belong to a user.
type UserLoggedIn struct{}

func (r *UserLoggedIn) Type() string { return TypeUserLoggedIn }

func (r *UserLoggedIn) Applicable(p orderdomain.Promotable) bool { return isOrder(p) }

func (r *UserLoggedIn) Eligible(_ context.Context, p orderdomain.Promotable, _ Options) (domain.EligibilityErrors, error) {
	if p.OwningOrder().UserID == nil {
		return fail("no_user_specified", "You need to login before applying this coupon code."), nil
	}
	return nil, nil
}

// User limits the promotion to a list of users.
type User struct {
	UserIDs []snowflake.ID `json:"user_ids"`
}

func (r *User) Type() string { return TypeUser }

func (r *User) Applicable(p orderdomain.Promotable) bool { return isOrder(p) }

func (r *User) Eligible(_ context.Context, p orderdomain.Promotable, _ Options) (domain.EligibilityErrors, error) {
	order := p.OwningOrder()
	if order.UserID == nil {
		return fail("no_user_specified", "You need to login before applying this coupon code."), nil
	}
	if !containsID(r.UserIDs, *order.UserID) {
		return fail("user_not_eligible", "You are not able to use this coupon code."), nil
	}
	return nil, nil
}

// FirstOrder matches a user's first completed order.
type FirstOrder struct{}

func (r *FirstOrder) Type() string { return TypeFirstOrder }

func (r *FirstOrder) Applicable(p orderdomain.Promotable) bool { return isOrder(p) }

func (r *FirstOrder) Eligible(ctx context.Context, p orderdomain.Promotable, opts Options) (domain.EligibilityErrors, error) {
	order := p.OwningOrder()
	if order.UserID == nil {
		return fail("no_user_specified", "You need to login before applying this coupon code."), nil
	}
	if opts.Lookup == nil {
		return nil, errLookupRequired
	}
	count, err := opts.Lookup.CompletedOrderCount(ctx, *order.UserID, order.ID)
	if err != nil {
		return nil, fmt.Errorf("count completed orders: %w", err)
	}
	if count > 0 {
		return fail("not_first_order", "This coupon code can only be applied to your first order."), nil
	}
	return nil, nil
}

// NthOrder matches when this order would be the user's Nth completed order.
type NthOrder struct {
	NthOrder int `json:"nth_order"`
}

func (r *NthOrder) Type() string { return TypeNthOrder }

func (r *NthOrder) validate() error {
	if r.NthOrder < 1 {
		return errors.New("nth_order must be at least 1")
	}
	return nil
}

func (r *NthOrder) Applicable(p orderdomain.Promotable) bool { return isOrder(p) }

func (r *NthOrder) Eligible(ctx context.Context, p orderdomain.Promotable, opts Options) (domain.EligibilityErrors, error) {
	order := p.OwningOrder()
	if order.UserID == nil {
		return fail("no_user_specified", "You need to login before applying this coupon code."), nil
	}
	if opts.Lookup == nil {
		return nil, errLookupRequired
	}
	count, err := opts.Lookup.CompletedOrderCount(ctx, *order.UserID, order.ID)
	if err != nil {
		return nil, fmt.Errorf("count completed orders: %w", err)
	}
	if int(count)+1 != r.NthOrder {
		return fail("not_nth_order", fmt.Sprintf("This coupon code can only be applied to order number %d.", r.NthOrder)), nil
	}
	return nil, nil
}

// OneUsePerUser rejects users who already completed an order with this promotion.
type OneUsePerUser struct{}

func (r *OneUsePerUser) Type() string { return TypeOneUsePerUser }

func (r *OneUsePerUser) Applicable(p orderdomain.Promotable) bool { return isOrder(p) }

func (r *OneUsePerUser) Eligible(ctx context.Context, p orderdomain.Promotable, opts Options) (domain.EligibilityErrors, error) {
	order := p.OwningOrder()
	if order.UserID == nil {
		return fail("no_user_specified", "You need to login before applying this coupon code."), nil
	}
	if opts.Lookup == nil {
		return nil, errLookupRequired
	}
	used, err := opts.Lookup.UsedBy(ctx, opts.PromotionID, *order.UserID, []snowflake.ID{order.ID})
	if err != nil {
		return nil, fmt.Errorf("check promotion usage: %w", err)
	}
	if used {
		return fail("limit_once_per_user", "This coupon code can only be used once per user."), nil
	}
	return nil, nil
}
