package table

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Declarative callbacks: tables can be defined data-first by giving
// expression strings instead of Go closures. Expressions are compiled once
// at build time and evaluated with env {row, user}.

func compileComputeExpr(src string) (ComputeFunc, error) {
	program, err := expr.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	return func(row Row) any {
		out, err := vm.Run(program, map[string]any{"row": row})
		if err != nil {
			return nil
		}
		return out
	}, nil
}

func compilePredicateExpr(src string) (RowPredicate, error) {
	program, err := expr.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	return func(row Row, user *UserContext) bool {
		env := map[string]any{"row": row, "user": user}
		out, err := vm.Run(program, env)
		if err != nil {
			return false
		}
		b, ok := out.(bool)
		return ok && b
	}, nil
}
