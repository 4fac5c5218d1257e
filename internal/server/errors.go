package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jarednorman/solidus-friendly-promotions/internal/adjuster"
	auditdomain "github.com/jarednorman/solidus-friendly-promotions/internal/audit/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/checkout"
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	promodomain "github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")

	errInvalidTime = errors.New("invalid_time")
)

var validationSentinels = []error{
	ErrInvalidRequest,
	promodomain.ErrInvalidID,
	promodomain.ErrInvalidRuleType,
	promodomain.ErrInvalidActionType,
	promodomain.ErrInvalidPreferences,
	promodomain.ErrInvalidCodeBatch,
	orderdomain.ErrInvalidID,
	orderdomain.ErrInvalidState,
	orderdomain.ErrInvalidQuantity,
	orderdomain.ErrInvalidPrice,
	auditdomain.ErrInvalidAction,
	auditdomain.ErrInvalidTimeRange,
	errInvalidTime,
}

var couponSentinels = []error{
	checkout.ErrCouponCodeNotFound,
	checkout.ErrCouponCodeExpired,
	checkout.ErrCouponCodeNotStarted,
	checkout.ErrCouponCodeAlreadyPresent,
	checkout.ErrCouponCodeNotPresent,
	checkout.ErrCouponCodeMaxUsage,
	checkout.ErrCouponCodeNotEligible,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// toValidationErrors converts record validation failures into the wire shape.
func toValidationErrors(errs promodomain.ValidationErrors) []ValidationError {
	out := make([]ValidationError, 0, len(errs))
	for _, e := range errs {
		out = append(out, ValidationError{Field: e.Field, Code: e.Code, Message: e.Message})
	}
	return out
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var recordErrs promodomain.ValidationErrors
	if errors.As(err, &recordErrs) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  toValidationErrors(recordErrs),
		}
	}

	if code, ok := matchSentinel(err, validationSentinels); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	if errors.Is(err, checkout.ErrCouponAttemptsExceeded) {
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Code:    checkout.ErrCouponAttemptsExceeded.Error(),
			Message: "too many coupon code attempts",
		}
	}

	if code, ok := matchSentinel(err, couponSentinels); ok {
		payload := errorPayload{
			Type:    "coupon_code_error",
			Code:    code,
			Message: strings.ReplaceAll(code, "_", " "),
		}
		var notEligible *checkout.NotEligibleError
		if errors.As(err, &notEligible) {
			for _, e := range notEligible.Errors {
				payload.Errors = append(payload.Errors, ValidationError{
					Field:   "code",
					Code:    e.Code,
					Message: e.Message,
				})
			}
		}
		return http.StatusUnprocessableEntity, payload
	}

	switch {
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    conflictCode(err),
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    notFoundCode(err),
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger with the same taxonomy the client sees.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if code == "" {
		code = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func matchSentinel(err error, sentinels []error) (string, bool) {
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, promodomain.ErrDuplicateCode),
		errors.Is(err, promodomain.ErrDuplicatePath),
		errors.Is(err, adjuster.ErrRecalculationInProgress):
		return true
	default:
		return false
	}
}

func conflictCode(err error) string {
	if code, ok := matchSentinel(err, []error{
		promodomain.ErrDuplicateCode,
		promodomain.ErrDuplicatePath,
		adjuster.ErrRecalculationInProgress,
	}); ok {
		return code
	}
	return ErrConflict.Error()
}

var notFoundSentinels = []error{
	promodomain.ErrNotFound,
	promodomain.ErrRuleNotFound,
	promodomain.ErrActionNotFound,
	promodomain.ErrCodeNotFound,
	promodomain.ErrOrderPromotionMissing,
	orderdomain.ErrNotFound,
	ErrNotFound,
}

func isNotFoundError(err error) bool {
	if _, ok := matchSentinel(err, notFoundSentinels); ok {
		return true
	}
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func notFoundCode(err error) string {
	if code, ok := matchSentinel(err, notFoundSentinels); ok {
		return code
	}
	return ErrNotFound.Error()
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_time_range", "invalid_time":
		return "time"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_time_range":
		return "start_at must not be after end_at"
	default:
		return "invalid value"
	}
}
