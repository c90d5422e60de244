package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"tablekit-backend/internal/table"
)

type bulkFixture struct {
	exec   *Executor
	tokens *TokenService

	// chunks records each handler invocation's row ids, in order.
	chunks [][]string

	failOn      int // 1-based chunk index to fail at, 0 = never
	beforeErr   error
	beforeCalls int
	afterCalls  int
}

func (f *bulkFixture) build(t *testing.T, rows []table.Row, chunkSize int) {
	t.Helper()

	def, err := table.New("orders", "orders").
		Column(table.Column{Key: "id", Type: table.ColumnText, Label: "ID", Visible: true}).
		Column(table.Column{Key: "status", Type: table.ColumnBadge, Label: "Status", Visible: true}).
		Column(table.Column{Key: "total", Type: table.ColumnNumeric, Label: "Total", Visible: true}).
		Filter(table.Filter{Field: "status", Type: table.FilterSet, Clauses: []table.Clause{table.ClauseEq, table.ClauseIn}}).
		Filter(table.Filter{Field: "total", Type: table.FilterNumeric, Clauses: []table.Clause{table.ClauseGte, table.ClauseBetween}}).
		BulkAction(table.BulkAction{
			Name:      "archive",
			Label:     "Archive",
			ChunkSize: chunkSize,
			Handle: func(_ context.Context, chunk []table.Row) (string, error) {
				var ids []string
				for _, row := range chunk {
					ids = append(ids, fmt.Sprintf("%v", row["id"]))
				}
				f.chunks = append(f.chunks, ids)
				if f.failOn > 0 && len(f.chunks) == f.failOn {
					return "", errors.New("archive store rejected batch")
				}
				return "archived", nil
			},
			Before: func(_ context.Context, _ []table.Row) error {
				f.beforeCalls++
				return f.beforeErr
			},
			After: func(_ context.Context, _ []table.Row) {
				f.afterCalls++
			},
		}).
		BulkAction(table.BulkAction{
			Name:  "restricted",
			Label: "Restricted",
			Handle: func(_ context.Context, _ []table.Row) (string, error) {
				return "", nil
			},
			Authorize: func(user *table.UserContext) bool {
				return user.IsAdmin()
			},
		}).
		Build()
	if err != nil {
		t.Fatalf("build definition: %v", err)
	}

	reg := table.NewRegistry()
	reg.Register(def)
	tokens := NewTokenService("secret", time.Hour, reg)
	f.tokens = tokens
	f.exec = NewExecutor(&memSource{rows: rows}, tokens)
}

func (f *bulkFixture) token(t *testing.T) string {
	t.Helper()
	token, err := f.tokens.Sign("orders", nil)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func orderRows(n int) []table.Row {
	rows := make([]table.Row, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, table.Row{"id": fmt.Sprintf("o%d", i), "status": "pending", "total": float64(i * 10)})
	}
	return rows
}

func TestExecuteBulk_ChunkingPreservesOrder(t *testing.T) {
	f := &bulkFixture{}
	f.build(t, orderRows(5), 2)

	sel := Selection{Mode: SelectionExplicit, IDs: []string{"o1", "o2", "o3", "o4", "o5"}}
	resp, appErr := f.exec.ExecuteBulk(context.Background(), f.token(t), "archive", sel, nil, nil)
	if appErr != nil {
		t.Fatalf("unexpected error: %v", appErr)
	}
	if !resp.Success || resp.Count != 5 {
		t.Fatalf("expected success over 5 rows, got %+v", resp)
	}
	if resp.Message != "archived" {
		t.Fatalf("expected first handler message, got %q", resp.Message)
	}

	want := [][]string{{"o1", "o2"}, {"o3", "o4"}, {"o5"}}
	if len(f.chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(f.chunks))
	}
	for i, chunk := range want {
		if len(f.chunks[i]) != len(chunk) {
			t.Fatalf("chunk %d: expected %v, got %v", i, chunk, f.chunks[i])
		}
		for j, id := range chunk {
			if f.chunks[i][j] != id {
				t.Fatalf("chunk %d: expected %v, got %v", i, chunk, f.chunks[i])
			}
		}
	}
	if f.beforeCalls != 1 || f.afterCalls != 1 {
		t.Fatalf("expected before/after once each, got %d/%d", f.beforeCalls, f.afterCalls)
	}
}

func TestExecuteBulk_PartialFailureReportsProcessed(t *testing.T) {
	f := &bulkFixture{failOn: 2}
	f.build(t, orderRows(5), 2)

	sel := Selection{Mode: SelectionExplicit, IDs: []string{"o1", "o2", "o3", "o4", "o5"}}
	resp, appErr := f.exec.ExecuteBulk(context.Background(), f.token(t), "archive", sel, nil, nil)
	if appErr != nil {
		t.Fatalf("partial failure should not be an error envelope: %v", appErr)
	}
	if resp.Success {
		t.Fatalf("expected failure response")
	}
	if resp.Count != 2 {
		t.Fatalf("expected 2 rows processed before the failing chunk, got %d", resp.Count)
	}
	if len(f.chunks) != 2 {
		t.Fatalf("execution should stop at the failing chunk, got %d invocations", len(f.chunks))
	}
	if f.afterCalls != 0 {
		t.Fatalf("after hook must not run on failure")
	}
}

func TestExecuteBulk_BeforeAborts(t *testing.T) {
	f := &bulkFixture{beforeErr: errors.New("quota exceeded")}
	f.build(t, orderRows(3), 2)

	sel := Selection{Mode: SelectionExplicit, IDs: []string{"o1", "o2", "o3"}}
	_, appErr := f.exec.ExecuteBulk(context.Background(), f.token(t), "archive", sel, nil, nil)
	if appErr == nil || appErr.Code != "HANDLER_FAILED" {
		t.Fatalf("expected HANDLER_FAILED, got %v", appErr)
	}
	if len(f.chunks) != 0 {
		t.Fatalf("no chunk may run after the before hook fails")
	}
}

func TestExecuteBulk_Authorization(t *testing.T) {
	f := &bulkFixture{}
	f.build(t, orderRows(1), 0)

	sel := Selection{Mode: SelectionExplicit, IDs: []string{"o1"}}
	_, appErr := f.exec.ExecuteBulk(context.Background(), f.token(t), "restricted", sel, nil, &table.UserContext{ID: "u1"})
	if appErr == nil || appErr.Code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %v", appErr)
	}

	admin := &table.UserContext{ID: "u2", Roles: []string{"admin"}}
	resp, appErr := f.exec.ExecuteBulk(context.Background(), f.token(t), "restricted", sel, nil, admin)
	if appErr != nil {
		t.Fatalf("unexpected error: %v", appErr)
	}
	if !resp.Success {
		t.Fatalf("expected success for admin")
	}
}

func TestExecuteBulk_EmptySelection(t *testing.T) {
	f := &bulkFixture{}
	f.build(t, orderRows(3), 0)

	sel := Selection{Mode: SelectionExplicit, IDs: nil}
	resp, appErr := f.exec.ExecuteBulk(context.Background(), f.token(t), "archive", sel, nil, nil)
	if appErr != nil {
		t.Fatalf("unexpected error: %v", appErr)
	}
	if !resp.Success || resp.Count != 0 {
		t.Fatalf("expected success with zero count, got %+v", resp)
	}
	if len(f.chunks) != 0 {
		t.Fatalf("handler must not run for an empty selection")
	}
}

func TestResolveSelection_ExplicitAndAllExceptPartition(t *testing.T) {
	f := &bulkFixture{}
	rows := orderRows(6)
	rows[1]["status"] = "paid"
	rows[4]["status"] = "paid"
	f.build(t, rows, 0)

	def, _, appErr := f.tokens.Verify(f.token(t))
	if appErr != nil {
		t.Fatalf("verify: %v", appErr)
	}
	filters := []FilterClause{{Field: "status", Op: table.ClauseEq, Value: "pending"}}

	all, appErr := f.exec.ResolveSelection(context.Background(), def, Selection{Mode: SelectionAll}, filters)
	if appErr != nil {
		t.Fatalf("all: %v", appErr)
	}
	except, appErr := f.exec.ResolveSelection(context.Background(), def,
		Selection{Mode: SelectionAllExcept, IDs: []string{"o3", "o6"}}, filters)
	if appErr != nil {
		t.Fatalf("all_except: %v", appErr)
	}
	explicit, appErr := f.exec.ResolveSelection(context.Background(), def,
		Selection{Mode: SelectionExplicit, IDs: []string{"o3", "o6"}}, filters)
	if appErr != nil {
		t.Fatalf("explicit: %v", appErr)
	}

	// all_except and the excluded ids partition the filtered set: disjoint,
	// and together they cover everything "all" resolves to.
	ids := func(rows []table.Row) map[string]bool {
		set := make(map[string]bool, len(rows))
		for _, row := range rows {
			set[fmt.Sprintf("%v", row["id"])] = true
		}
		return set
	}
	allSet, exceptSet, explicitSet := ids(all), ids(except), ids(explicit)
	if len(allSet) != 4 {
		t.Fatalf("expected 4 pending rows, got %d", len(allSet))
	}
	for id := range exceptSet {
		if explicitSet[id] {
			t.Fatalf("id %s in both all_except and excluded sets", id)
		}
	}
	if len(exceptSet)+len(explicitSet) != len(allSet) {
		t.Fatalf("all_except (%d) + excluded (%d) must cover all (%d)", len(exceptSet), len(explicitSet), len(allSet))
	}
	for id := range allSet {
		if !exceptSet[id] && !explicitSet[id] {
			t.Fatalf("id %s missing from the partition", id)
		}
	}
}

func TestResolveSelection_InvalidFilter(t *testing.T) {
	f := &bulkFixture{}
	f.build(t, orderRows(2), 0)

	def, _, appErr := f.tokens.Verify(f.token(t))
	if appErr != nil {
		t.Fatalf("verify: %v", appErr)
	}

	filters := []FilterClause{{Field: "nope", Op: table.ClauseEq, Value: "x"}}
	_, appErr = f.exec.ResolveSelection(context.Background(), def, Selection{Mode: SelectionAll}, filters)
	if appErr == nil || appErr.Code != "INVALID_SELECTION" {
		t.Fatalf("expected INVALID_SELECTION, got %v", appErr)
	}

	_, appErr = f.exec.ResolveSelection(context.Background(), def, Selection{Mode: "everything"}, nil)
	if appErr == nil || appErr.Code != "INVALID_SELECTION" {
		t.Fatalf("expected INVALID_SELECTION for unknown mode, got %v", appErr)
	}
}

func TestResolveSelection_BetweenBounds(t *testing.T) {
	f := &bulkFixture{}
	f.build(t, orderRows(5), 0)

	def, _, appErr := f.tokens.Verify(f.token(t))
	if appErr != nil {
		t.Fatalf("verify: %v", appErr)
	}

	// A scalar bound is rejected up front, not deferred to query building.
	for _, bad := range []any{float64(5), "5", []any{float64(5)}, []any{1.0, 2.0, 3.0}} {
		filters := []FilterClause{{Field: "total", Op: table.ClauseBetween, Value: bad}}
		_, appErr = f.exec.ResolveSelection(context.Background(), def, Selection{Mode: SelectionAll}, filters)
		if appErr == nil || appErr.Code != "INVALID_SELECTION" {
			t.Fatalf("value %v: expected INVALID_SELECTION, got %v", bad, appErr)
		}
	}

	filters := []FilterClause{{Field: "total", Op: table.ClauseBetween, Value: []any{float64(20), float64(40)}}}
	rows, appErr := f.exec.ResolveSelection(context.Background(), def, Selection{Mode: SelectionAll}, filters)
	if appErr != nil {
		t.Fatalf("two bounds: %v", appErr)
	}
	if len(rows) != 3 {
		t.Fatalf("expected rows with total in [20,40], got %d", len(rows))
	}
}
