package engine

import "strings"

// Verdict is the tri-state compliance annotation of an uploaded file.
type Verdict int

const (
	VerdictUnset Verdict = iota
	VerdictCompliant
	VerdictNonCompliant
)

func (v Verdict) String() string {
	switch v {
	case VerdictCompliant:
		return "compliant"
	case VerdictNonCompliant:
		return "non_compliant"
	default:
		return "unset"
	}
}

// Bool returns the canonical stored form: true, false, or NULL.
func (v Verdict) Bool() *bool {
	switch v {
	case VerdictCompliant:
		b := true
		return &b
	case VerdictNonCompliant:
		b := false
		return &b
	default:
		return nil
	}
}

// NormalizeVerdict coerces the historical wire representations into the
// tri-state. The backend has returned booleans, strings and numbers for
// this value over time, so reads accept all of true/"true"/1 for compliant
// and false/"false"/0 for non-compliant; anything else is unset.
// Idempotent: normalizing a Verdict yields itself.
func NormalizeVerdict(v any) Verdict {
	switch val := v.(type) {
	case Verdict:
		return val
	case bool:
		if val {
			return VerdictCompliant
		}
		return VerdictNonCompliant
	case *bool:
		if val == nil {
			return VerdictUnset
		}
		return NormalizeVerdict(*val)
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1":
			return VerdictCompliant
		case "false", "0":
			return VerdictNonCompliant
		}
		return VerdictUnset
	case float64:
		switch val {
		case 1:
			return VerdictCompliant
		case 0:
			return VerdictNonCompliant
		}
		return VerdictUnset
	case int:
		switch val {
		case 1:
			return VerdictCompliant
		case 0:
			return VerdictNonCompliant
		}
		return VerdictUnset
	case int64:
		return NormalizeVerdict(int(val))
	default:
		return VerdictUnset
	}
}
