// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package main

import (
	"math"
	"sort"
	"strings"

	"github.com/casbin/govaluate"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"github.com/aclements/go-perfmux/internal/config"
)

// A derivedMetric is an expression over the per-interval deltas of the
// events being counted.
type derivedMetric struct {
	name string
	expr *govaluate.EvaluableExpression
}

// compileMetrics parses ms. Every variable must name one of the events.
func compileMetrics(ms []config.Metric, eventNames mapset.Set[string]) ([]derivedMetric, error) {
	funcs := evaluatorFunctions()
	var out []derivedMetric
	for _, m := range ms {
		expr, err := govaluate.NewEvaluableExpressionWithFunctions(m.Expr, funcs)
		if err != nil {
			return nil, errors.Wrapf(err, "metric %s", m.Name)
		}
		missing := mapset.NewSet(expr.Vars()...).Difference(eventNames)
		if missing.Cardinality() > 0 {
			names := missing.ToSlice()
			sort.Strings(names)
			err := errors.Errorf("metric %s: not counting %s", m.Name, strings.Join(names, ", "))
			if hasDashedName(eventNames) {
				err = errors.WithMessage(err, "write names containing '-' in brackets, as in [L1-dcache-loads]")
			}
			return nil, err
		}
		out = append(out, derivedMetric{m.Name, expr})
	}
	return out, nil
}

// hasDashedName reports whether any name would parse as a subtraction
// unless bracketed.
func hasDashedName(names mapset.Set[string]) bool {
	for _, name := range names.ToSlice() {
		if strings.Contains(name, "-") {
			return true
		}
	}
	return false
}

// eval evaluates m over values, which maps event names to deltas. A
// result that isn't a number is NaN.
func (m derivedMetric) eval(values map[string]any) (float64, error) {
	res, err := m.expr.Evaluate(values)
	if err != nil {
		return math.NaN(), errors.Wrapf(err, "evaluating %s", m.name)
	}
	if v, ok := res.(float64); ok {
		return v, nil
	}
	return math.NaN(), nil
}

func evaluatorFunctions() map[string]govaluate.ExpressionFunction {
	arg := func(args []any, i int) (float64, error) {
		if i >= len(args) {
			return 0, errors.Errorf("want %d arguments, got %d", i+1, len(args))
		}
		v, ok := args[i].(float64)
		if !ok {
			return 0, errors.Errorf("argument %d is %T, want a number", i+1, args[i])
		}
		return v, nil
	}
	pair := func(f func(a, b float64) float64) govaluate.ExpressionFunction {
		return func(args ...any) (any, error) {
			a, err := arg(args, 0)
			if err != nil {
				return nil, err
			}
			b, err := arg(args, 1)
			if err != nil {
				return nil, err
			}
			return f(a, b), nil
		}
	}
	return map[string]govaluate.ExpressionFunction{
		"max": pair(math.Max),
		"min": pair(math.Min),
		// ratio is a / b, or 0 when b is 0.
		"ratio": pair(func(a, b float64) float64 {
			if b == 0 {
				return 0
			}
			return a / b
		}),
	}
}
