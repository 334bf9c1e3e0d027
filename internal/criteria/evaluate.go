package criteria

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Match evaluates one condition against a resolved value. A nil actual means
// the field has no value: Exists fails, NotExists and IsEmpty succeed, and
// string comparisons run against the empty string. All string comparisons
// ignore case; numeric operators fail closed when either side is not a
// number.
func Match(cond Condition, actual *string) bool {
	switch cond.Operator {
	case OpExists:
		return actual != nil
	case OpNotExists:
		return actual == nil
	}

	var v string
	if actual != nil {
		v = *actual
	}
	return compare(cond.Operator, v, cond.Value)
}

func compare(op Operator, actual, expected string) bool {
	a := strings.ToLower(actual)
	e := strings.ToLower(expected)

	switch op {
	case OpEquals:
		return a == e
	case OpNotEquals:
		return a != e
	case OpContains:
		return strings.Contains(a, e)
	case OpNotContains:
		return !strings.Contains(a, e)
	case OpStartsWith:
		return strings.HasPrefix(a, e)
	case OpEndsWith:
		return strings.HasSuffix(a, e)
	case OpIsEmpty:
		return strings.TrimSpace(actual) == ""
	case OpIsNotEmpty:
		return strings.TrimSpace(actual) != ""
	case OpGreaterThan, OpLessThan:
		x, err1 := strconv.ParseFloat(strings.TrimSpace(actual), 64)
		y, err2 := strconv.ParseFloat(strings.TrimSpace(expected), 64)
		if err1 != nil || err2 != nil {
			return false
		}
		if op == OpGreaterThan {
			return x > y
		}
		return x < y
	case OpMatches:
		re, ok := compilePattern(expected)
		if !ok {
			return false
		}
		return re.MatchString(actual)
	default:
		return false
	}
}

// MatchAll reports whether every condition matches, resolving each field
// through get. An empty list matches.
func MatchAll(conds []Condition, get func(field string) *string) bool {
	for _, c := range conds {
		if !Match(c, get(c.Field)) {
			return false
		}
	}
	return true
}

// patternCache holds compiled case-insensitive patterns; a nil entry marks
// a pattern that failed to compile.
var patternCache sync.Map // map[string]*regexp.Regexp

func compilePattern(p string) (*regexp.Regexp, bool) {
	if cached, ok := patternCache.Load(p); ok {
		re := cached.(*regexp.Regexp)
		return re, re != nil
	}
	re, err := regexp.Compile("(?i)" + p)
	if err != nil {
		patternCache.Store(p, (*regexp.Regexp)(nil))
		return nil, false
	}
	patternCache.Store(p, re)
	return re, true
}
