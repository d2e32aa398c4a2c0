package template

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// filterFunc transforms a value inside a pipeline. Filters are pure: they
// never mutate their input.
type filterFunc func(value interface{}, args []interface{}) (interface{}, error)

var builtinFilters = map[string]filterFunc{
	"upper":      filterUpper,
	"lower":      filterLower,
	"join":       filterJoin,
	"length":     filterLength,
	"count":      filterLength,
	"trim":       filterTrim,
	"first":      filterFirst,
	"last":       filterLast,
	"split":      filterSplit,
	"replace":    filterReplace,
	"match":      filterMatch,
	"search":     filterSearch,
	"selectattr": filterSelectattr,
	"unique":     filterUnique,
}

// applyDefault implements the default filter. It is dispatched outside the
// registry because it is the only filter allowed to observe an undefined
// value. An optional truthy second argument extends the fallback to falsy
// values.
func applyDefault(value interface{}, args []interface{}) (interface{}, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("default filter takes 1 or 2 arguments, got %d", len(args))
	}
	if _, ok := isUndefined(value); ok {
		return args[0], nil
	}
	if len(args) == 2 && Truthy(args[1]) && !Truthy(value) {
		return args[0], nil
	}
	return value, nil
}

func wantString(name string, value interface{}) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%s filter requires a string, got %s", name, KindOf(value))
	}
	return s, nil
}

func wantSeq(name string, value interface{}) ([]interface{}, error) {
	items, ok := asSeq(value)
	if !ok {
		return nil, fmt.Errorf("%s filter requires a sequence, got %s", name, KindOf(value))
	}
	return items, nil
}

func wantNoArgs(name string, args []interface{}) error {
	if len(args) != 0 {
		return fmt.Errorf("%s filter takes no arguments, got %d", name, len(args))
	}
	return nil
}

func filterUpper(value interface{}, args []interface{}) (interface{}, error) {
	if err := wantNoArgs("upper", args); err != nil {
		return nil, err
	}
	s, err := wantString("upper", value)
	if err != nil {
		return nil, err
	}
	return strings.ToUpper(s), nil
}

func filterLower(value interface{}, args []interface{}) (interface{}, error) {
	if err := wantNoArgs("lower", args); err != nil {
		return nil, err
	}
	s, err := wantString("lower", value)
	if err != nil {
		return nil, err
	}
	return strings.ToLower(s), nil
}

func filterJoin(value interface{}, args []interface{}) (interface{}, error) {
	sep := ""
	if len(args) > 1 {
		return nil, fmt.Errorf("join filter takes at most 1 argument, got %d", len(args))
	}
	if len(args) == 1 {
		s, err := wantString("join", args[0])
		if err != nil {
			return nil, err
		}
		sep = s
	}
	items, err := wantSeq("join", value)
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = Stringify(item)
	}
	return strings.Join(parts, sep), nil
}

func filterLength(value interface{}, args []interface{}) (interface{}, error) {
	if err := wantNoArgs("length", args); err != nil {
		return nil, err
	}
	switch KindOf(value) {
	case KindString:
		return len(value.(string)), nil
	case KindSeq, KindMap:
		if _, ok := value.(Mapper); ok {
			return nil, fmt.Errorf("length filter is not supported on accessor values")
		}
		return reflect.ValueOf(value).Len(), nil
	default:
		return nil, fmt.Errorf("length filter requires a string, sequence or mapping, got %s", KindOf(value))
	}
}

func filterTrim(value interface{}, args []interface{}) (interface{}, error) {
	if err := wantNoArgs("trim", args); err != nil {
		return nil, err
	}
	s, err := wantString("trim", value)
	if err != nil {
		return nil, err
	}
	return strings.TrimSpace(s), nil
}

func filterFirst(value interface{}, args []interface{}) (interface{}, error) {
	if err := wantNoArgs("first", args); err != nil {
		return nil, err
	}
	items, err := wantSeq("first", value)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("first filter on an empty sequence")
	}
	return items[0], nil
}

func filterLast(value interface{}, args []interface{}) (interface{}, error) {
	if err := wantNoArgs("last", args); err != nil {
		return nil, err
	}
	items, err := wantSeq("last", value)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("last filter on an empty sequence")
	}
	return items[len(items)-1], nil
}

func filterSplit(value interface{}, args []interface{}) (interface{}, error) {
	s, err := wantString("split", value)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		fields := strings.Fields(s)
		out := make([]interface{}, len(fields))
		for i, f := range fields {
			out[i] = f
		}
		return out, nil
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("split filter takes at most 1 argument, got %d", len(args))
	}
	sep, err := wantString("split", args[0])
	if err != nil {
		return nil, err
	}
	parts := strings.Split(s, sep)
	out := make([]interface{}, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

func filterReplace(value interface{}, args []interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("replace filter takes 2 arguments, got %d", len(args))
	}
	s, err := wantString("replace", value)
	if err != nil {
		return nil, err
	}
	from, err := wantString("replace", args[0])
	if err != nil {
		return nil, err
	}
	to, err := wantString("replace", args[1])
	if err != nil {
		return nil, err
	}
	return strings.ReplaceAll(s, from, to), nil
}

// filterMatch anchors the pattern at the start of the string.
func filterMatch(value interface{}, args []interface{}) (interface{}, error) {
	return regexTest("match", value, args, true)
}

// filterSearch matches the pattern anywhere in the string.
func filterSearch(value interface{}, args []interface{}) (interface{}, error) {
	return regexTest("search", value, args, false)
}

func regexTest(name string, value interface{}, args []interface{}, anchored bool) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%s filter takes 1 argument, got %d", name, len(args))
	}
	s, err := wantString(name, value)
	if err != nil {
		return nil, err
	}
	pattern, err := wantString(name, args[0])
	if err != nil {
		return nil, err
	}
	if anchored && !strings.HasPrefix(pattern, "^") {
		pattern = "^(?:" + pattern + ")"
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%s filter: invalid pattern %q: %w", name, pattern, err)
	}
	return re.MatchString(s), nil
}

// filterSelectattr filters a sequence of mappings, keeping elements whose
// named attribute passes the given test: equalto, match or search. Without a
// test it keeps elements whose attribute is truthy.
func filterSelectattr(value interface{}, args []interface{}) (interface{}, error) {
	items, err := wantSeq("selectattr", value)
	if err != nil {
		return nil, err
	}
	if len(args) < 1 || len(args) > 3 {
		return nil, fmt.Errorf("selectattr filter takes 1 to 3 arguments, got %d", len(args))
	}
	attr, err := wantString("selectattr", args[0])
	if err != nil {
		return nil, err
	}

	test := ""
	var operand interface{}
	if len(args) >= 2 {
		test, err = wantString("selectattr", args[1])
		if err != nil {
			return nil, err
		}
		if len(args) == 3 {
			operand = args[2]
		} else {
			return nil, fmt.Errorf("selectattr test %q requires an operand", test)
		}
	}

	var out []interface{}
	for _, item := range items {
		attrVal, found, err := lookupIn(item, attr)
		if err != nil {
			return nil, fmt.Errorf("selectattr filter: %w", err)
		}
		if !found {
			continue
		}
		keep := false
		switch test {
		case "":
			keep = Truthy(attrVal)
		case "equalto", "eq", "==":
			keep = Equal(attrVal, operand)
		case "match", "search":
			res, err := regexTest(test, attrVal, []interface{}{operand}, test == "match")
			if err != nil {
				return nil, err
			}
			keep = res.(bool)
		default:
			return nil, fmt.Errorf("selectattr filter: unknown test %q", test)
		}
		if keep {
			out = append(out, item)
		}
	}
	if out == nil {
		out = []interface{}{}
	}
	return out, nil
}

func filterUnique(value interface{}, args []interface{}) (interface{}, error) {
	if err := wantNoArgs("unique", args); err != nil {
		return nil, err
	}
	items, err := wantSeq("unique", value)
	if err != nil {
		return nil, err
	}
	out := []interface{}{}
	for _, item := range items {
		seen := false
		for _, existing := range out {
			if Equal(existing, item) {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, item)
		}
	}
	return out, nil
}
