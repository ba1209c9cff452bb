package masking

import "strings"

const maskToken = "****"

// MaskSecret redacts a value while keeping a short suffix for correlation.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// Sensitive metadata keys whose values are always masked regardless of shape.
var sensitiveKeys = map[string]bool{
	"email":      true,
	"phone":      true,
	"name":       true,
	"full_name":  true,
	"patient_id": true,
	"api_key":    true,
	"token":      true,
}

// MaskJSON returns a copy of the input with sensitive values masked. Nested
// maps and slices are walked recursively.
func MaskJSON(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		masked[trimmedKey] = maskValue(trimmedKey, value)
	}

	if len(masked) == 0 {
		return nil
	}
	return masked
}

func maskValue(key string, value any) any {
	switch cast := value.(type) {
	case string:
		if sensitiveKeys[strings.ToLower(key)] {
			return MaskSecret(cast)
		}
		return cast
	case map[string]any:
		return MaskJSON(cast)
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, maskValue(key, item))
		}
		return out
	default:
		return value
	}
}
