package domain

import (
	"errors"
	"strings"
)

var (
	ErrInvalidID             = errors.New("invalid_id")
	ErrNotFound              = errors.New("promotion_not_found")
	ErrRuleNotFound          = errors.New("promotion_rule_not_found")
	ErrActionNotFound        = errors.New("promotion_action_not_found")
	ErrCodeNotFound          = errors.New("promotion_code_not_found")
	ErrDuplicateCode         = errors.New("promotion_code_taken")
	ErrDuplicatePath         = errors.New("promotion_path_taken")
	ErrInvalidRuleType       = errors.New("invalid_rule_type")
	ErrInvalidActionType     = errors.New("invalid_action_type")
	ErrInvalidPreferences    = errors.New("invalid_preferences")
	ErrInvalidCodeBatch      = errors.New("invalid_code_batch")
	ErrOrderPromotionMissing = errors.New("order_promotion_not_found")
)

// ValidationError is one failed record invariant.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors blocks persistence of an invalid record.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Field+": "+e.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Has(code string) bool {
	for _, e := range v {
		if e.Code == code {
			return true
		}
	}
	return false
}

// EligibilityError explains why a rule or promotion did not match a promotable.
type EligibilityError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type EligibilityErrors []EligibilityError

func (e EligibilityErrors) Empty() bool { return len(e) == 0 }

func (e EligibilityErrors) Codes() []string {
	out := make([]string, 0, len(e))
	for _, err := range e {
		out = append(out, err.Code)
	}
	return out
}

// Eligibility is the outcome of evaluating a promotion against a promotable.
type Eligibility struct {
	Eligible bool              `json:"eligible"`
	Errors   EligibilityErrors `json:"errors,omitempty"`
}
