package calc

import (
	"errors"
	"math"
	"regexp"

	"github.com/expr-lang/expr"
)

var (
	errUnknownName = errors.New("unknown identifier")
	errNotNumeric  = errors.New("expression is not numeric")
	errNotFinite   = errors.New("result is not finite")
)

// allowedNames are the builtin functions and constants an expression may
// reference besides bound variables. Case-sensitive. abs/ceil/floor/round
// and min/max come from the expression library itself; the rest are wired in
// through the evaluation environment.
var allowedNames = map[string]struct{}{
	"pi": {}, "e": {},
	"abs": {}, "ceil": {}, "floor": {}, "round": {},
	"min": {}, "max": {},
	"sqrt": {}, "cbrt": {}, "exp": {},
	"log": {}, "log2": {}, "log10": {},
	"sin": {}, "cos": {}, "tan": {},
	"asin": {}, "acos": {}, "atan": {},
}

// reIdent matches identifier tokens that are not glued to a preceding digit
// or dot, so scientific-notation literals never look like names.
var reIdent = regexp.MustCompile(`(?:^|[^0-9A-Za-z_.])([A-Za-z_][A-Za-z0-9_]*)`)

// evalExpr evaluates one preprocessed arithmetic expression against a
// read-only snapshot of the variable table and returns the numeric value.
//
// Every identifier must be a bound variable or an allowed builtin: this
// check runs before the expression library sees the text, so an unknown
// name like "rate2" is a hard failure regardless of how the library would
// tokenize it (it must never be reinterpreted as "rate * 2").
func evalExpr(src string, vars map[string]float64) (float64, error) {
	if err := checkIdentifiers(src, vars); err != nil {
		return 0, err
	}

	env := buildEnv(vars)
	program, err := expr.Compile(src, expr.Env(env))
	if err != nil {
		return 0, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return 0, err
	}

	value, ok := toFloat(out)
	if !ok {
		return 0, errNotNumeric
	}
	// Float division by zero yields Inf rather than an error; treat any
	// non-finite value as a failed evaluation.
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, errNotFinite
	}
	return value, nil
}

func checkIdentifiers(src string, vars map[string]float64) error {
	for _, m := range reIdent.FindAllStringSubmatch(src, -1) {
		name := m[1]
		if _, ok := vars[name]; ok {
			continue
		}
		if _, ok := allowedNames[name]; ok {
			continue
		}
		return errUnknownName
	}
	return nil
}

// buildEnv assembles the evaluation environment: constants and math
// functions first, then the variable table, so an assignment may shadow a
// builtin name.
func buildEnv(vars map[string]float64) map[string]any {
	env := map[string]any{
		"pi":    math.Pi,
		"e":     math.E,
		"sqrt":  math.Sqrt,
		"cbrt":  math.Cbrt,
		"exp":   math.Exp,
		"log":   math.Log,
		"log2":  math.Log2,
		"log10": math.Log10,
		"sin":   math.Sin,
		"cos":   math.Cos,
		"tan":   math.Tan,
		"asin":  math.Asin,
		"acos":  math.Acos,
		"atan":  math.Atan,
	}
	for name, value := range vars {
		env[name] = value
	}
	return env
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
