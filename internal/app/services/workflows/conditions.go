package workflows

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/flowdesk/automation_layer/internal/app/domain/workflow"
)

// EvaluateCondition evaluates a condition tree against the snapshot. A nil
// tree is unconditional. Evaluation never errors: malformed leaves fail
// closed, since save-time validation is the enforcement point.
func EvaluateCondition(cond *workflow.Condition, evalCtx EvalContext) bool {
	if cond == nil {
		return true
	}
	return evalNode(*cond, evalCtx)
}

func evalNode(c workflow.Condition, evalCtx EvalContext) bool {
	// An empty all is vacuously true; an empty any is vacuously false. The
	// any case means a workflow saved with {"any": []} never fires, which is
	// kept for compatibility with existing definitions.
	if c.All != nil {
		for _, child := range c.All {
			if !evalNode(child, evalCtx) {
				return false
			}
		}
		return true
	}
	if c.Any != nil {
		for _, child := range c.Any {
			if evalNode(child, evalCtx) {
				return true
			}
		}
		return false
	}
	return evalLeaf(c, evalCtx)
}

func evalLeaf(c workflow.Condition, evalCtx EvalContext) bool {
	res := evalCtx.Lookup(c.Field)
	present := res.Exists() && res.Type != gjson.Null

	switch c.Operator {
	case workflow.OpExists:
		return present
	case workflow.OpEquals:
		return present && valueEqual(res, c.Value)
	case workflow.OpNotEquals:
		// A missing field is by definition not equal to anything.
		if !present {
			return true
		}
		return !valueEqual(res, c.Value)
	case workflow.OpContains:
		return present && contains(res, c.Value)
	case workflow.OpGreaterThan:
		return present && compare(res, c.Value) > 0
	case workflow.OpLessThan:
		return present && compare(res, c.Value) < 0
	case workflow.OpIn:
		return present && member(res, c.Value)
	case workflow.OpNotIn:
		if !present {
			return true
		}
		return !member(res, c.Value)
	default:
		// Unknown operators are rejected at save time; at runtime they fail
		// closed rather than panic.
		return false
	}
}

// valueEqual implements strict value equality between a snapshot field and a
// condition literal, normalising JSON numerics to float64.
func valueEqual(res gjson.Result, value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return res.Type == gjson.Null
	case string:
		return res.Type == gjson.String && res.Str == v
	case bool:
		return res.IsBool() && res.Bool() == v
	case float64:
		return res.Type == gjson.Number && res.Num == v
	case int:
		return res.Type == gjson.Number && res.Num == float64(v)
	case int64:
		return res.Type == gjson.Number && res.Num == float64(v)
	default:
		return false
	}
}

func contains(res gjson.Result, value interface{}) bool {
	if res.Type == gjson.String {
		needle, ok := value.(string)
		return ok && strings.Contains(res.Str, needle)
	}
	if res.IsArray() {
		for _, elem := range res.Array() {
			if valueEqual(elem, value) {
				return true
			}
		}
	}
	return false
}

// compare orders a snapshot field against a condition literal, returning
// -1/0/1, or 0 for non-comparable pairs so both greater_than and less_than
// fail closed.
func compare(res gjson.Result, value interface{}) int {
	if res.Type == gjson.Number {
		limit, ok := toFloat(value)
		if !ok {
			return 0
		}
		switch {
		case res.Num > limit:
			return 1
		case res.Num < limit:
			return -1
		default:
			return 0
		}
	}
	if res.Type == gjson.String {
		lhs, okL := parseTime(res.Str)
		raw, isStr := value.(string)
		if !okL || !isStr {
			return 0
		}
		rhs, okR := parseTime(raw)
		if !okR {
			return 0
		}
		switch {
		case lhs.After(rhs):
			return 1
		case lhs.Before(rhs):
			return -1
		default:
			return 0
		}
	}
	return 0
}

func member(res gjson.Result, value interface{}) bool {
	for _, candidate := range valueList(value) {
		if valueEqual(res, candidate) {
			return true
		}
	}
	return false
}

func valueList(value interface{}) []interface{} {
	switch v := value.(type) {
	case []interface{}:
		return v
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case nil:
		return nil
	default:
		return []interface{}{v}
	}
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func parseTime(raw string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
