package history

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kon-rad/wuhistory/internal/workunit"
)

var (
	ErrUnknownColumn        = errors.New("unknown column")
	ErrUnknownOperator      = errors.New("unknown operator")
	ErrInvalidValue         = errors.New("invalid value")
	ErrOperatorNotSupported = errors.New("operator not supported for column")
)

// TimeLayout is the textual timestamp form used in the store. It sorts
// lexically in time order.
const TimeLayout = "2006-01-02 15:04:05"

var timeLayouts = []string{
	TimeLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02",
}

// ParseTime parses the timestamp forms accepted in queries and found in
// stores written by older releases. Values without a zone are UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q", s)
}

func FormatTime(t time.Time) string {
	return NormalizeTime(t).Format(TimeLayout)
}

type TranslateError struct {
	Index     int
	Predicate Predicate
	Err       error
}

func (e *TranslateError) Error() string {
	return fmt.Sprintf("predicate %d (%s %s %v): %v", e.Index, e.Predicate.Column, e.Predicate.Operator, e.Predicate.Value, e.Err)
}

func (e *TranslateError) Unwrap() error {
	return e.Err
}

// Filter is a parameterized WHERE clause body. Where is empty for select-all.
type Filter struct {
	Where string
	Args  []any
}

func (f Filter) Empty() bool {
	return f.Where == ""
}

// Translate converts q into a filter over the history select. Every
// predicate is validated before anything is returned.
func Translate(q Query) (Filter, error) {
	if len(q.Predicates) == 0 {
		return Filter{}, nil
	}
	clauses := make([]string, 0, len(q.Predicates))
	args := make([]any, 0, len(q.Predicates))
	for i, p := range q.Predicates {
		clause, arg, err := translatePredicate(p)
		if err != nil {
			return Filter{}, &TranslateError{Index: i, Predicate: p, Err: err}
		}
		clauses = append(clauses, clause)
		args = append(args, arg)
	}
	return Filter{Where: strings.Join(clauses, " AND "), Args: args}, nil
}

func translatePredicate(p Predicate) (string, any, error) {
	if !p.Column.Valid() {
		return "", nil, ErrUnknownColumn
	}
	if !p.Operator.Valid() {
		return "", nil, ErrUnknownOperator
	}
	info := columns[p.Column]
	if (p.Operator == Like || p.Operator == NotLike) && info.kind != KindString {
		return "", nil, ErrOperatorNotSupported
	}
	arg, err := convertValue(info.kind, p.Value)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return "[" + info.sql + "] " + operators[p.Operator].sql + " ?", arg, nil
}

func convertValue(kind Kind, v any) (any, error) {
	if v == nil {
		return nil, errors.New("value is required")
	}
	switch kind {
	case KindString:
		return toString(v)
	case KindInteger:
		return toInt(v)
	case KindReal:
		return toFloat(v)
	case KindTimestamp:
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		return FormatTime(t), nil
	case KindDuration:
		d, err := toDuration(v)
		if err != nil {
			return nil, err
		}
		return int64(d / time.Second), nil
	case KindResult:
		switch x := v.(type) {
		case workunit.Result:
			return int64(x), nil
		case string:
			r, err := workunit.ParseResult(x)
			if err != nil {
				return nil, err
			}
			return int64(r), nil
		}
		return toInt(v)
	}
	return nil, fmt.Errorf("unsupported kind %d", kind)
}

func toString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case fmt.Stringer:
		return x.String(), nil
	case int, int32, int64, float32, float64, bool:
		return fmt.Sprint(x), nil
	}
	return "", fmt.Errorf("cannot use %T as text", v)
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return uintToInt(uint64(x))
	case uint64:
		return uintToInt(x)
	case uint32:
		return int64(x), nil
	case float32:
		return floatToInt(float64(x))
	case float64:
		return floatToInt(x)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse integer %q", x)
		}
		return n, nil
	}
	return 0, fmt.Errorf("cannot use %T as integer", v)
}

func uintToInt(u uint64) (int64, error) {
	if u > math.MaxInt64 {
		return 0, fmt.Errorf("%d overflows int64", u)
	}
	return int64(u), nil
}

func floatToInt(f float64) (int64, error) {
	const limit = 1 << 63
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	if f >= limit || f < -limit {
		return 0, fmt.Errorf("%v overflows int64", f)
	}
	return int64(f), nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("parse number %q", x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("cannot use %T as number", v)
}

func toTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		return ParseTime(x)
	}
	return time.Time{}, fmt.Errorf("cannot use %T as timestamp", v)
}

// toDuration accepts a time.Duration, a Go duration string, hh:mm:ss, or a
// number of seconds.
func toDuration(v any) (time.Duration, error) {
	switch x := v.(type) {
	case time.Duration:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		if d, err := time.ParseDuration(s); err == nil {
			return d, nil
		}
		if d, ok := parseClock(s); ok {
			return d, nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("parse duration %q", x)
		}
		return time.Duration(n * float64(time.Second)), nil
	}
	secs, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func parseClock(s string) (time.Duration, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	var total time.Duration
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, false
		}
		total += time.Duration(n) * units[i]
	}
	return total, true
}
