package sqlite

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/homebook/pkg/types"
)

// whereClause accumulates SQL conditions and their arguments.
type whereClause struct {
	conds []string
	args  []any
}

func (w *whereClause) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

// in adds "col IN (?, ...)"; an empty list matches nothing.
func (w *whereClause) in(col string, values []string) {
	if len(values) == 0 {
		w.conds = append(w.conds, "0")
		return
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	w.conds = append(w.conds, fmt.Sprintf("%s IN (%s)", col, marks))
	for _, v := range values {
		w.args = append(w.args, v)
	}
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// checkFilterKeys rejects keys a table does not understand.
func checkFilterKeys(filter map[string]any, allowed ...string) error {
	for k := range filter {
		ok := false
		for _, a := range allowed {
			if k == a {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("unknown filter %q: %w", k, types.ErrInvalidFilter)
		}
	}
	return nil
}

// filterString returns a string filter value. Present values of another
// type are rejected with ErrInvalidFilter.
func filterString(filter map[string]any, key string) (string, bool, error) {
	v, ok := filter[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("filter %q must be a string: %w", key, types.ErrInvalidFilter)
	}
	return s, true, nil
}

// filterStrings accepts a single string or a string slice.
func filterStrings(filter map[string]any, key string) ([]string, bool, error) {
	v, ok := filter[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	switch tv := v.(type) {
	case string:
		return []string{tv}, true, nil
	case []string:
		return tv, true, nil
	default:
		return nil, false, fmt.Errorf("filter %q must be a string or []string: %w", key, types.ErrInvalidFilter)
	}
}

// filterInt returns a non-negative integer filter value.
func filterInt(filter map[string]any, key string) (int, bool, error) {
	v, ok := filter[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	var n int
	switch tv := v.(type) {
	case int:
		n = tv
	case int64:
		n = int(tv)
	case float64:
		n = int(tv)
	default:
		return 0, false, fmt.Errorf("filter %q must be an integer: %w", key, types.ErrInvalidFilter)
	}
	if n < 0 {
		return 0, false, fmt.Errorf("filter %q must not be negative: %w", key, types.ErrInvalidFilter)
	}
	return n, true, nil
}

// addStringFilters adds an equality condition for every present key.
func addStringFilters(w *whereClause, filter map[string]any, keys ...string) error {
	for _, key := range keys {
		v, ok, err := filterString(filter, key)
		if err != nil {
			return err
		}
		if ok {
			w.add(key+" = ?", v)
		}
	}
	return nil
}
