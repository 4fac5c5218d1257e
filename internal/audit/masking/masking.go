package masking

import "strings"

const maskToken = "****"

// sensitiveKeys are metadata keys whose values are masked before an audit write.
var sensitiveKeys = map[string]bool{
	"code":         true,
	"coupon_code":  true,
	"email":        true,
	"promo_code":   true,
	"customer_ref": true,
}

// MaskCode redacts a coupon code while keeping its batch prefix and a short suffix.
func MaskCode(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, remainder := splitPrefix(trimmed)
	if len(remainder) <= 4 {
		return prefix + maskToken
	}

	return prefix + maskToken + remainder[len(remainder)-4:]
}

// MaskFields returns a copy of the input with sensitive string values masked.
func MaskFields(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		if sensitiveKeys[trimmedKey] {
			masked[trimmedKey] = maskValue(value)
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			masked[trimmedKey] = MaskFields(nested)
			continue
		}
		masked[trimmedKey] = value
	}

	if len(masked) == 0 {
		return nil
	}
	return masked
}

func maskValue(value any) any {
	switch cast := value.(type) {
	case string:
		return MaskCode(cast)
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, maskValue(item))
		}
		return out
	case []string:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, MaskCode(item))
		}
		return out
	default:
		return value
	}
}

func splitPrefix(value string) (string, string) {
	lastSep := strings.LastIndexAny(value, "_-")
	if lastSep == -1 || lastSep == len(value)-1 {
		return "", value
	}
	return value[:lastSep+1], value[lastSep+1:]
}
