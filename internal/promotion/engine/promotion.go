package engine

import (
	"sort"
	"time"

	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/action"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/rule"
)

// Promotion is a stored promotion with its rules and actions built.
type Promotion struct {
	Record  *domain.Promotion
	Rules   []rule.Rule
	Actions []action.Action
}

// Build turns a loaded promotion record into its runtime form.
func Build(record *domain.Promotion) (*Promotion, error) {
	p := &Promotion{Record: record}
	for _, r := range record.Rules {
		built, err := rule.New(r)
		if err != nil {
			return nil, err
		}
		p.Rules = append(p.Rules, built)
	}
	for _, a := range record.Actions {
		built, err := action.New(a, record)
		if err != nil {
			return nil, err
		}
		p.Actions = append(p.Actions, built)
	}
	return p, nil
}

// BuildAll builds every record and sorts the result by lane, then id.
func BuildAll(records []*domain.Promotion) ([]*Promotion, error) {
	out := make([]*Promotion, 0, len(records))
	for _, record := range records {
		p, err := Build(record)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	SortByLane(out)
	return out, nil
}

func SortByLane(promos []*Promotion) {
	sort.SliceStable(promos, func(i, j int) bool {
		li, lj := promos[i].Record.LaneIndex(), promos[j].Record.LaneIndex()
		if li != lj {
			return li < lj
		}
		return promos[i].Record.ID < promos[j].Record.ID
	})
}

func (p *Promotion) Active(now time.Time) bool {
	return domain.Activation(now, p.Record.StartsAt, p.Record.ExpiresAt, len(p.Actions) > 0) == domain.ActivationActive
}

func (p *Promotion) Lane() domain.Lane { return p.Record.Lane }

// ActionsByLevel returns the actions ordered so line item actions run before shipment actions.
func (p *Promotion) ActionsByLevel() []action.Action {
	out := make([]action.Action, len(p.Actions))
	copy(out, p.Actions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Level() < out[j].Level() })
	return out
}
