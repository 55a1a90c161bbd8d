// Package calc implements the notebook evaluation pipeline: each line of a
// document is preprocessed (comments, operator glyphs, percentage phrases,
// assignments), evaluated against the variables bound by earlier lines, and
// formatted for display.
//
// The pipeline is deterministic and stateless between calls: variables live
// only for the duration of one pass, built strictly in line order. A line
// that fails at any stage gets the ErrResult marker and binds nothing; later
// lines are unaffected.
//
//	results := calc.Evaluate([]string{"price = 100", "price * 2"})
//	// results == []string{"100", "200"}
package calc

import "strings"

// ErrResult is the display marker for a line that failed to parse or
// evaluate. It is deliberately a single generic token: the notebook does not
// distinguish failure subtypes to the user.
const ErrResult = "Err"

// Evaluate runs a full evaluation pass over the raw line expressions in
// order and returns one formatted result per line. Blank lines and full
// comment lines yield "".
//
// The pass is idempotent: the result of a line depends only on the
// expressions of the lines up to and including it, never on previous
// results.
func Evaluate(exprs []string) []string {
	vars := make(map[string]float64)
	results := make([]string, len(exprs))
	for i, raw := range exprs {
		results[i] = evaluateLine(raw, vars)
	}
	return results
}

// evaluateLine processes one raw line against the accumulated variable
// table, mutating vars only when an assignment succeeds end to end.
func evaluateLine(raw string, vars map[string]float64) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	expr := StripComment(raw)
	if expr == "" {
		return ""
	}

	expr = NormalizeOperators(expr)
	expr = RewritePercentages(expr)

	target, rhs, isAssignment := SplitAssignment(expr)
	if isAssignment && !ValidName(target) {
		return ErrResult
	}

	value, err := evalExpr(rhs, vars)
	if err != nil {
		return ErrResult
	}

	if isAssignment {
		// Bind the raw float, not the formatted text, so later lines keep
		// full precision.
		vars[target] = value
	}
	return Format(value)
}
