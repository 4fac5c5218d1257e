package adjuster

import (
	"github.com/jarednorman/solidus-friendly-promotions/internal/config"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/action"
)

// chooser picks which of an item's candidate discounts in one lane are kept.
type chooser func(candidates []action.Discount) []action.Discount

func chooserFor(name string) chooser {
	if name == config.ChooserAll {
		return chooseAll
	}
	return chooseBest
}

// chooseBest keeps the largest discount. Ties go to the earliest candidate.
func chooseBest(candidates []action.Discount) []action.Discount {
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	for _, d := range candidates[1:] {
		if d.Amount.LessThan(best.Amount) {
			best = d
		}
	}
	return []action.Discount{best}
}

func chooseAll(candidates []action.Discount) []action.Discount {
	return candidates
}
