package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/gridedit/internal/record"
)

// ParseRule builds a cell validator from a short textual rule:
//
//	required      value present, non-nil and not ""
//	min:N         numeric value >= N
//	max:N         numeric value <= N
//	pattern:RE    string value matches RE
//
// Rules other than required pass on absent or nil values.
func ParseRule(rule string) (CellValidator, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(rule), ":")
	switch name {
	case "required":
		return CellFunc(func(_ context.Context, value any, _ record.Record, _ string) (string, error) {
			if value == nil {
				return "required", nil
			}
			if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
				return "required", nil
			}
			return "", nil
		}), nil

	case "min", "max":
		bound, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("rule %q: invalid bound: %w", rule, err)
		}
		isMin := name == "min"
		return CellFunc(func(_ context.Context, value any, _ record.Record, _ string) (string, error) {
			if value == nil {
				return "", nil
			}
			n, ok := toFloat(value)
			if !ok {
				return "must be a number", nil
			}
			if isMin && n < bound {
				return fmt.Sprintf("must be at least %s", arg), nil
			}
			if !isMin && n > bound {
				return fmt.Sprintf("must be at most %s", arg), nil
			}
			return "", nil
		}), nil

	case "pattern":
		re, err := regexp.Compile(arg)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule, err)
		}
		return CellFunc(func(_ context.Context, value any, _ record.Record, _ string) (string, error) {
			if value == nil {
				return "", nil
			}
			s, ok := value.(string)
			if !ok || !re.MatchString(s) {
				return fmt.Sprintf("must match %s", arg), nil
			}
			return "", nil
		}), nil
	}
	return nil, fmt.Errorf("unknown rule %q", rule)
}

// RegistryFromRules builds a registry from field → rule. Fields are
// registered in sorted order so results are deterministic.
func RegistryFromRules(rules map[string]string) (*Registry, error) {
	reg := NewRegistry()
	fields := make([]string, 0, len(rules))
	for f := range rules {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	for _, f := range fields {
		v, err := ParseRule(rules[f])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f, err)
		}
		reg.Register(f, v)
	}
	return reg, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
