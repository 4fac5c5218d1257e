package domain

import "time"

type ActivationState string

const (
	ActivationNotStarted ActivationState = "not_started"
	ActivationActive     ActivationState = "active"
	ActivationExpired    ActivationState = "expired"
	ActivationInactive   ActivationState = "inactive"
)

// Activation derives the state from the window and whether any action exists.
// It is computed on every call and never stored.
func Activation(now time.Time, startsAt, expiresAt *time.Time, hasActions bool) ActivationState {
	switch {
	case startsAt != nil && now.Before(*startsAt):
		return ActivationNotStarted
	case expiresAt != nil && now.After(*expiresAt):
		return ActivationExpired
	case !hasActions:
		return ActivationInactive
	default:
		return ActivationActive
	}
}

func (p *Promotion) HasActions() bool { return len(p.Actions) > 0 }

func (p *Promotion) NotStarted(now time.Time) bool {
	return p.StartsAt != nil && now.Before(*p.StartsAt)
}

func (p *Promotion) Started(now time.Time) bool { return !p.NotStarted(now) }

func (p *Promotion) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

func (p *Promotion) NotExpired(now time.Time) bool { return !p.Expired(now) }

func (p *Promotion) ActivationState(now time.Time) ActivationState {
	return Activation(now, p.StartsAt, p.ExpiresAt, p.HasActions())
}

func (p *Promotion) Active(now time.Time) bool {
	return p.ActivationState(now) == ActivationActive
}

func (p *Promotion) Inactive(now time.Time) bool { return !p.Active(now) }

func (p *Promotion) LaneIndex() int {
	if idx, ok := OrderedLanes()[p.Lane]; ok {
		return idx
	}
	return OrderedLanes()[LaneDefault]
}
