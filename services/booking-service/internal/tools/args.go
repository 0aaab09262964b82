package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/llm"
)

// argError is a validation failure mapped to a Result code.
type argError struct {
	code Code
	msg  string
}

func (e *argError) Error() string { return e.msg }

func invalid(format string, a ...any) *argError {
	return &argError{code: CodeInvalidArguments, msg: fmt.Sprintf(format, a...)}
}

// args holds arguments that passed schema validation.
type args struct {
	strings map[string]string
	ints    map[string]int
}

func (a args) str(name string) string { return a.strings[name] }

func (a args) integer(name string, fallback int) int {
	if v, ok := a.ints[name]; ok {
		return v
	}
	return fallback
}

func (a args) date(name string) (time.Time, bool) {
	v, ok := a.strings[name]
	if !ok {
		return time.Time{}, false
	}
	d, _ := calendar.ParseDate(v)
	return d, true
}

func (a args) clock(name string) int {
	m, _ := calendar.ParseClock(a.strings[name])
	return m
}

// validate checks raw model arguments against the declared params: no unknown
// names, every required name present, types and formats exact.
func validate(tool llm.Tool, raw map[string]any) (args, *argError) {
	out := args{strings: map[string]string{}, ints: map[string]int{}}

	var unknown []string
	for name := range raw {
		if _, ok := tool.Param(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return out, invalid("unknown arguments: %s", strings.Join(unknown, ", "))
	}

	for _, p := range tool.Params {
		v, present := raw[p.Name]
		if !present || v == nil {
			if p.Required {
				return out, invalid("missing required argument %q", p.Name)
			}
			continue
		}
		switch p.Type {
		case llm.TypeInteger:
			n, err := toInt(v)
			if err != nil {
				return out, invalid("argument %q: %v", p.Name, err)
			}
			if (p.Min != 0 || p.Max != 0) && (n < p.Min || n > p.Max) {
				return out, invalid("argument %q must be between %d and %d", p.Name, p.Min, p.Max)
			}
			out.ints[p.Name] = n
		case llm.TypeString:
			s, ok := v.(string)
			if !ok {
				return out, invalid("argument %q must be a string", p.Name)
			}
			s = strings.TrimSpace(s)
			if err := checkString(p, s); err != nil {
				return out, err
			}
			if s == "" && !p.Required {
				continue
			}
			out.strings[p.Name] = s
		}
	}
	return out, nil
}

func checkString(p llm.Param, s string) *argError {
	if s == "" && p.Required {
		return invalid("argument %q must not be empty", p.Name)
	}
	if s == "" {
		return nil
	}
	switch p.Format {
	case llm.FormatDate:
		if _, err := calendar.ParseDate(s); err != nil {
			return &argError{code: CodeInvalidDate, msg: fmt.Sprintf("argument %q must be a real date in YYYY-MM-DD format", p.Name)}
		}
	case llm.FormatTime:
		if _, err := calendar.ParseClock(s); err != nil {
			return &argError{code: CodeInvalidDate, msg: fmt.Sprintf("argument %q must be a time in HH:MM format", p.Name)}
		}
	}
	if len(p.Enum) > 0 {
		for _, e := range p.Enum {
			if s == e {
				return nil
			}
		}
		return invalid("argument %q must be one of %s", p.Name, strings.Join(p.Enum, ", "))
	}
	if p.Max > 0 && len(s) > p.Max {
		return invalid("argument %q must be at most %d characters", p.Name, p.Max)
	}
	return nil
}

// toInt accepts JSON numbers only when they hold an integral value.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, fmt.Errorf("must be a whole number")
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("must be a whole number")
		}
		return int(i), nil
	}
	return 0, fmt.Errorf("must be a number")
}
