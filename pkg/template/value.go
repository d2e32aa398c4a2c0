package template

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Kind is the closed set of value kinds the engine operates on. Filters and
// operators dispatch on Kind instead of inspecting raw Go types everywhere.
type Kind int

const (
	KindUndefined Kind = iota
	KindNone
	KindBool
	KindNumber
	KindString
	KindSeq
	KindMap
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNone:
		return "none"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSeq:
		return "sequence"
	case KindMap:
		return "mapping"
	default:
		return "other"
	}
}

// undefined is the sentinel produced by looking up a missing variable or a
// missing attribute. It flows through the pipeline so that the default filter
// can replace it; any other use converts it into an UndefinedVariableError.
type undefined struct {
	name string
}

func isUndefined(v interface{}) (undefined, bool) {
	u, ok := v.(undefined)
	return u, ok
}

// requireDefined converts an undefined sentinel into its error form. Every
// operation except the default filter goes through this before touching a
// value.
func requireDefined(v interface{}) (interface{}, error) {
	if u, ok := isUndefined(v); ok {
		return nil, &UndefinedVariableError{Name: u.name}
	}
	return v, nil
}

// KindOf classifies an arbitrary context value.
func KindOf(v interface{}) Kind {
	if v == nil {
		return KindNone
	}
	if _, ok := isUndefined(v); ok {
		return KindUndefined
	}
	switch v.(type) {
	case bool:
		return KindBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return KindNumber
	case string:
		return KindString
	case Mapper:
		return KindMap
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return KindSeq
	case reflect.Map:
		return KindMap
	default:
		return KindOther
	}
}

// Truthy reports the truth value of v following the template language rules:
// empty strings, empty sequences, empty mappings, zero and false are falsy.
func Truthy(v interface{}) bool {
	switch KindOf(v) {
	case KindNone, KindUndefined:
		return false
	case KindBool:
		return v.(bool)
	case KindNumber:
		f, _ := toFloat(v)
		return f != 0
	case KindString:
		return v.(string) != ""
	case KindSeq:
		return reflect.ValueOf(v).Len() > 0
	case KindMap:
		if _, ok := v.(Mapper); ok {
			return true
		}
		return reflect.ValueOf(v).Len() > 0
	default:
		return true
	}
}

// Stringify renders a value into its template output form.
func Stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Equal compares two values, treating all numeric types as one domain.
func Equal(a, b interface{}) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two values of the same kind. The bool result reports
// whether the pair is orderable at all.
func compareValues(a, b interface{}) (int, bool) {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

// asSeq converts any slice or array value into []interface{}.
func asSeq(v interface{}) ([]interface{}, bool) {
	if items, ok := v.([]interface{}); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

// lookupIn resolves container[key] for the container shapes the engine
// supports: mappings, Mapper accessors, sequences with integer indices and
// strings with integer indices. A missing mapping key is reported as
// found=false, not as an error, so that the default filter can catch it.
func lookupIn(container, key interface{}) (interface{}, bool, error) {
	switch c := container.(type) {
	case Mapper:
		ks, ok := key.(string)
		if !ok {
			return nil, false, fmt.Errorf("cannot index accessor with %s key", KindOf(key))
		}
		return c.TemplateGet(ks)
	case map[string]interface{}:
		ks, ok := key.(string)
		if !ok {
			return nil, false, fmt.Errorf("cannot index mapping with %s key", KindOf(key))
		}
		v, found := c[ks]
		return v, found, nil
	case map[interface{}]interface{}:
		v, found := c[key]
		return v, found, nil
	case string:
		idx, ok := toFloat(key)
		if !ok {
			return nil, false, fmt.Errorf("string index must be a number, got %s", KindOf(key))
		}
		i := int(idx)
		if i < 0 || i >= len(c) {
			return nil, false, nil
		}
		return string(c[i]), true, nil
	}

	if items, ok := asSeq(container); ok {
		idx, ok := toFloat(key)
		if !ok {
			return nil, false, fmt.Errorf("sequence index must be a number, got %s", KindOf(key))
		}
		i := int(idx)
		if i < 0 || i >= len(items) {
			return nil, false, nil
		}
		return items[i], true, nil
	}

	return nil, false, fmt.Errorf("cannot access items of a %s value", KindOf(container))
}

// contains implements the membership test: element of a sequence, substring
// of a string, or key of a mapping.
func contains(needle, haystack interface{}) (bool, error) {
	switch KindOf(haystack) {
	case KindString:
		ns, ok := needle.(string)
		if !ok {
			return false, fmt.Errorf("membership test on a string requires a string, got %s", KindOf(needle))
		}
		return strings.Contains(haystack.(string), ns), nil
	case KindSeq:
		items, _ := asSeq(haystack)
		for _, item := range items {
			if Equal(item, needle) {
				return true, nil
			}
		}
		return false, nil
	case KindMap:
		_, found, err := lookupIn(haystack, needle)
		if err != nil {
			return false, err
		}
		return found, nil
	default:
		return false, fmt.Errorf("membership test is not supported on a %s value", KindOf(haystack))
	}
}
