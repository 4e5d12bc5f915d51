// Package logic evaluates JSON-logic predicates against a context map.
//
// A condition is plain decoded JSON (map[string]any / []any / string /
// float64 / bool / nil, exactly what encoding/json produces for schemaless
// payloads). Evaluation is pure, side-effect-free, and bounded: predicates
// arrive from untrusted API callers, so recursion depth is capped rather
// than trusted to terminate on its own.
package logic

import (
	"fmt"
	"strings"
)

// MaxDepth bounds condition-tree recursion. Predicates nested deeper than
// this are rejected rather than evaluated, per the "safe on untrusted
// predicates" requirement.
const MaxDepth = 64

// Eval evaluates condition against data and reports whether it is satisfied.
func Eval(condition any, data map[string]any) (bool, error) {
	v, err := eval(condition, data, 0)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// eval returns the raw JSON-logic result value (not necessarily a bool —
// "var" and comparison operators can surface any JSON value up the tree,
// matching json-logic's untyped evaluation model).
func eval(node any, data map[string]any, depth int) (any, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("logic: recursion depth exceeds %d", MaxDepth)
	}

	obj, ok := node.(map[string]any)
	if !ok {
		// Literals (string, number, bool, nil, array) evaluate to themselves.
		return node, nil
	}
	if len(obj) != 1 {
		return nil, fmt.Errorf("logic: condition object must have exactly one operator key, got %d", len(obj))
	}

	var op string
	var rawArgs any
	for k, v := range obj {
		op, rawArgs = k, v
	}

	if op == "var" {
		return evalVar(rawArgs, data)
	}

	args, err := toArgs(rawArgs)
	if err != nil {
		return nil, fmt.Errorf("logic: operator %q: %w", op, err)
	}

	switch op {
	case "and":
		return evalAnd(args, data, depth)
	case "or":
		return evalOr(args, data, depth)
	case "!":
		return evalNot(args, data, depth)
	case "==", "!=", "<", "<=", ">", ">=":
		return evalComparison(op, args, data, depth)
	case "in":
		return evalIn(args, data, depth)
	default:
		return nil, fmt.Errorf("logic: unknown operator %q", op)
	}
}

func toArgs(raw any) ([]any, error) {
	switch v := raw.(type) {
	case []any:
		return v, nil
	case nil:
		return nil, nil
	default:
		// json-logic allows a bare (non-array) single argument.
		return []any{v}, nil
	}
}

func evalVar(raw any, data map[string]any) (any, error) {
	args, err := toArgs(raw)
	if err != nil {
		return nil, err
	}
	var path string
	switch len(args) {
	case 0:
		return data, nil
	case 1, 2:
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf(`logic: "var" path must be a string`)
		}
		path = s
	default:
		return nil, fmt.Errorf(`logic: "var" takes 1 or 2 arguments, got %d`, len(args))
	}
	if path == "" {
		return data, nil
	}

	var cur any = data
	for _, segment := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return defaultArg(args), nil
		}
		v, ok := m[segment]
		if !ok {
			return defaultArg(args), nil
		}
		cur = v
	}
	return cur, nil
}

func defaultArg(args []any) any {
	if len(args) == 2 {
		return args[1]
	}
	return nil
}

func evalAnd(args []any, data map[string]any, depth int) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf(`logic: "and" requires at least one argument`)
	}
	var last any = true
	for _, a := range args {
		v, err := eval(a, data, depth+1)
		if err != nil {
			return nil, err
		}
		last = v
		if !truthy(v) {
			return v, nil
		}
	}
	return last, nil
}

func evalOr(args []any, data map[string]any, depth int) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf(`logic: "or" requires at least one argument`)
	}
	var last any = false
	for _, a := range args {
		v, err := eval(a, data, depth+1)
		if err != nil {
			return nil, err
		}
		last = v
		if truthy(v) {
			return v, nil
		}
	}
	return last, nil
}

func evalNot(args []any, data map[string]any, depth int) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf(`logic: "!" takes exactly one argument, got %d`, len(args))
	}
	v, err := eval(args[0], data, depth+1)
	if err != nil {
		return nil, err
	}
	return !truthy(v), nil
}

func evalComparison(op string, args []any, data map[string]any, depth int) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("logic: %q takes exactly two arguments, got %d", op, len(args))
	}
	left, err := eval(args[0], data, depth+1)
	if err != nil {
		return false, err
	}
	right, err := eval(args[1], data, depth+1)
	if err != nil {
		return false, err
	}

	if op == "==" || op == "!=" {
		eq := looseEqual(left, right)
		if op == "!=" {
			return !eq, nil
		}
		return eq, nil
	}

	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return false, fmt.Errorf("logic: %q requires numeric operands, got %T and %T", op, left, right)
	}
	switch op {
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	case ">":
		return lf > rf, nil
	case ">=":
		return lf >= rf, nil
	}
	return false, fmt.Errorf("logic: unreachable comparison operator %q", op)
}

// evalIn implements substring-in-string and membership-in-array.
func evalIn(args []any, data map[string]any, depth int) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf(`logic: "in" takes exactly two arguments, got %d`, len(args))
	}
	needle, err := eval(args[0], data, depth+1)
	if err != nil {
		return false, err
	}
	haystack, err := eval(args[1], data, depth+1)
	if err != nil {
		return false, err
	}

	switch h := haystack.(type) {
	case string:
		n, ok := needle.(string)
		if !ok {
			return false, fmt.Errorf(`logic: "in" against a string requires a string needle, got %T`, needle)
		}
		return strings.Contains(h, n), nil
	case []any:
		for _, item := range h {
			if looseEqual(needle, item) {
				return true, nil
			}
		}
		return false, nil
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf(`logic: "in" requires a string or array haystack, got %T`, haystack)
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

// looseEqual compares two decoded-JSON values for json-logic "==" semantics:
// same-typed values compare directly; numeric/string cross-comparison is
// attempted via numeric coercion before falling back to false.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

// ExtractDimensions walks condition and collects the flat equality terms it
// finds — either a single {"==": [{"var": "k"}, literal]} or an "and" of
// such terms — into a dimension-name to literal-value map. Nested "or",
// inequality, and other non-equality terms contribute nothing; this mirrors
// what a priority-sum computation over a dimension registry can use without
// having to understand arbitrary boolean structure.
func ExtractDimensions(condition any) (map[string]any, error) {
	dims := make(map[string]any)
	if err := extractDimensions(condition, dims, 0); err != nil {
		return nil, err
	}
	return dims, nil
}

func extractDimensions(node any, dims map[string]any, depth int) error {
	if depth > MaxDepth {
		return fmt.Errorf("logic: recursion depth exceeds %d", MaxDepth)
	}
	obj, ok := node.(map[string]any)
	if !ok || len(obj) != 1 {
		return nil
	}

	var op string
	var rawArgs any
	for k, v := range obj {
		op, rawArgs = k, v
	}

	switch op {
	case "and":
		args, err := toArgs(rawArgs)
		if err != nil {
			return nil
		}
		for _, a := range args {
			if err := extractDimensions(a, dims, depth+1); err != nil {
				return err
			}
		}
	case "==":
		args, err := toArgs(rawArgs)
		if err != nil || len(args) != 2 {
			return nil
		}
		varNode, ok := args[0].(map[string]any)
		if !ok {
			return nil
		}
		varArgs, err := toArgs(varNode["var"])
		if err != nil || len(varArgs) == 0 {
			return nil
		}
		path, ok := varArgs[0].(string)
		if !ok || path == "" {
			return nil
		}
		if _, isVar := args[1].(map[string]any); isVar {
			return nil
		}
		dims[path] = args[1]
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		// json-logic coerces numeric strings for ordering comparisons.
		var f float64
		if _, err := fmt.Sscanf(x, "%g", &f); err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}
