package questions

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValidationError reports which field rejected its answer.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validate checks a raw answer against the descriptor and returns the value
// to record. FileMulti answers live in the staging buffer, so stagedCount is
// the only input considered for them and the returned value is nil.
func (d Descriptor) Validate(raw string, stagedCount int) (any, error) {
	if d.Kind == KindFileMulti {
		if stagedCount == 0 {
			return nil, &ValidationError{Field: d.ID, Reason: "at least one image is required"}
		}
		if !d.Multiple() && stagedCount > 1 {
			return nil, &ValidationError{Field: d.ID, Reason: "only one image is allowed"}
		}
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, &ValidationError{Field: d.ID, Reason: "answer is required"}
	}
	switch d.Kind {
	case KindNumber:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, &ValidationError{Field: d.ID, Reason: "answer must be a number"}
		}
		return n, nil
	case KindRadio:
		if !d.HasOption(value) {
			return nil, &ValidationError{Field: d.ID, Reason: "select one of the listed options"}
		}
		return value, nil
	default:
		return value, nil
	}
}

// Format renders a recorded answer back into the raw input form, used to
// re-populate a step the user navigates back to.
func (d Descriptor) Format(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
