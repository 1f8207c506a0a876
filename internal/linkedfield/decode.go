package linkedfield

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/totegamma/restoration-forms/internal/domain"
)

// decodeList converts a submitted answer into a typed list. Absent answers decode to an empty list.
func decodeList[T any](question string, value any) ([]T, error) {
	if value == nil {
		return nil, nil
	}
	if typed, ok := value.([]T); ok {
		return typed, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, &domain.ValidationError{Question: question, Reason: err.Error()}
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &domain.ValidationError{Question: question, Reason: "expected a list of records"}
	}
	return out, nil
}

func decodeEmbedded(question string, value any) ([]domain.EmbeddedRecord, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []domain.EmbeddedRecord:
		return v, nil
	case []map[string]any:
		out := make([]domain.EmbeddedRecord, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out, nil
	case []any:
		out := make([]domain.EmbeddedRecord, 0, len(v))
		for _, item := range v {
			switch m := item.(type) {
			case map[string]any:
				out = append(out, m)
			case domain.EmbeddedRecord:
				out = append(out, m)
			default:
				return nil, &domain.ValidationError{Question: question, Reason: "expected a list of records"}
			}
		}
		return out, nil
	}
	return decodeList[domain.EmbeddedRecord](question, value)
}

// toInteger accepts any numeric answer holding a whole number.
func toInteger(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float32:
		return toInteger(float64(v))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}

func optionalString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func stringPtr(s string) *string {
	return &s
}

// sameOptional treats nil and "" as the same absent value.
func sameOptional(a, b *string) bool {
	return optionalString(a) == optionalString(b)
}

func warnf(resource domain.RelationResource, format string, args ...any) domain.Warning {
	return domain.Warning{Resource: string(resource), Message: fmt.Sprintf(format, args...)}
}
