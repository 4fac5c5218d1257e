package domain

import (
	"strings"

	"github.com/gosimple/slug"
)

// Normalize applies defaults and canonical forms before validation.
func (p *Promotion) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.CustomerLabel = strings.TrimSpace(p.CustomerLabel)
	if p.Lane == "" {
		p.Lane = LaneDefault
	}
	if p.MatchPolicy == "" {
		p.MatchPolicy = MatchAll
	}
	if p.Path != nil {
		path := slug.Make(strings.TrimSpace(*p.Path))
		if path == "" {
			p.Path = nil
		} else {
			p.Path = &path
		}
	}
}

// Validate returns ValidationErrors, or nil when the promotion may be persisted.
func (p *Promotion) Validate() error {
	var errs ValidationErrors
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ValidationError{Field: "name", Code: "blank", Message: "can't be blank"})
	}
	if strings.TrimSpace(p.CustomerLabel) == "" {
		errs = append(errs, ValidationError{Field: "customer_label", Code: "blank", Message: "can't be blank"})
	}
	if !p.Lane.Valid() {
		errs = append(errs, ValidationError{Field: "lane", Code: "inclusion", Message: "must be one of pre, default, post"})
	}
	if !p.MatchPolicy.Valid() {
		errs = append(errs, ValidationError{Field: "match_policy", Code: "inclusion", Message: "must be one of all, any"})
	}
	if p.UsageLimit != nil && *p.UsageLimit <= 0 {
		errs = append(errs, ValidationError{Field: "usage_limit", Code: "greater_than", Message: "must be greater than 0"})
	}
	if p.PerCodeUsageLimit != nil && *p.PerCodeUsageLimit < 0 {
		errs = append(errs, ValidationError{Field: "per_code_usage_limit", Code: "greater_than_or_equal_to", Message: "must be greater than or equal to 0"})
	}
	if p.ApplyAutomatically && p.Path != nil && *p.Path != "" {
		errs = append(errs, ValidationError{Field: "apply_automatically", Code: "disallowed_with_path", Message: "cannot be set on a promotion with a path"})
	}
	if p.StartsAt != nil && p.ExpiresAt != nil && !p.ExpiresAt.After(*p.StartsAt) {
		errs = append(errs, ValidationError{Field: "expires_at", Code: "invalid_date_range", Message: "must be after starts_at"})
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidateCodable rejects codes on a promotion that applies automatically.
func (p *Promotion) ValidateCodable() error {
	if !p.ApplyAutomatically {
		return nil
	}
	return ValidationErrors{{
		Field:   "apply_automatically",
		Code:    "disallowed_with_code",
		Message: "cannot be set on a promotion with codes",
	}}
}

// NormalizeCode lower-cases and trims a coupon code for storage and lookup.
func NormalizeCode(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
