package engine

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"testing"
	"time"

	"tablekit-backend/internal/table"
)

func exportFixture(t *testing.T, rows []table.Row) (*Executor, *TokenService) {
	t.Helper()

	def, err := table.New("orders", "orders").
		DefaultSort("id", "asc").
		Column(table.Column{Key: "id", Type: table.ColumnText, Label: "Order", Visible: true, Sortable: true}).
		Column(table.Column{Key: "status", Type: table.ColumnBadge, Label: "Status", Visible: true,
			MapAs: func(v any) any {
				if v == "paid" {
					return "Paid"
				}
				return v
			}}).
		Column(table.Column{Key: "total", Type: table.ColumnNumeric, Label: "Total", Visible: true,
			Format: func(v any) string {
				if v == nil {
					return "$0.00"
				}
				return fmt.Sprintf("$%.2f", v)
			}}).
		Column(table.Column{Key: "placed_at", Type: table.ColumnDate, Label: "Placed", Visible: true}).
		Column(table.Column{Key: "internal_ref", Type: table.ColumnText, Label: "Ref", Visible: false}).
		Filter(table.Filter{Field: "status", Type: table.FilterSet, Clauses: []table.Clause{table.ClauseEq}}).
		Export(table.Export{Name: "csv", Label: "Export CSV"}).
		Export(table.Export{Name: "slim", Label: "Slim", Columns: []string{"status", "id"}, Filename: "{table}_slim.csv"}).
		Export(table.Export{Name: "finance", Label: "Finance", Authorize: func(user *table.UserContext) bool {
			return user.HasRole("finance")
		}}).
		Build()
	if err != nil {
		t.Fatalf("build definition: %v", err)
	}

	reg := table.NewRegistry()
	reg.Register(def)
	tokens := NewTokenService("secret", time.Hour, reg)
	return NewExecutor(&memSource{rows: rows}, tokens), tokens
}

func exportToken(t *testing.T, tokens *TokenService) string {
	t.Helper()
	token, err := tokens.Sign("orders", nil)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func renderExport(t *testing.T, file *ExportFile) [][]string {
	t.Helper()
	var buf bytes.Buffer
	if err := file.WriteTo(&buf); err != nil {
		t.Fatalf("write export: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse export output: %v", err)
	}
	return records
}

func TestRunExport_HeaderAndFormatting(t *testing.T) {
	placed := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	exec, tokens := exportFixture(t, []table.Row{
		{"id": "o2", "status": "pending", "total": 12.5, "placed_at": placed},
		{"id": "o1", "status": "paid", "total": nil, "placed_at": nil},
	})

	file, appErr := exec.RunExport(context.Background(), exportToken(t, tokens), "csv", nil, nil)
	if appErr != nil {
		t.Fatalf("unexpected error: %v", appErr)
	}
	if file.ContentType != "text/csv" {
		t.Fatalf("expected text/csv, got %s", file.ContentType)
	}
	if !strings.HasPrefix(file.Filename, "orders_") || !strings.HasSuffix(file.Filename, ".csv") {
		t.Fatalf("unexpected default filename %q", file.Filename)
	}

	records := renderExport(t, file)
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d records", len(records))
	}

	// Hidden columns stay out; labels come out in declaration order.
	wantHeader := []string{"Order", "Status", "Total", "Placed"}
	for i, label := range wantHeader {
		if records[0][i] != label {
			t.Fatalf("header[%d]: expected %q, got %q", i, label, records[0][i])
		}
	}

	// Default sort applies: o1 before o2 despite insertion order.
	if records[1][0] != "o1" || records[2][0] != "o2" {
		t.Fatalf("expected default sort by id, got %q then %q", records[1][0], records[2][0])
	}
	if records[1][1] != "Paid" {
		t.Fatalf("MapAs should apply on export, got %q", records[1][1])
	}
	if records[1][2] != "$0.00" {
		t.Fatalf("custom formatter should see the nil value, got %q", records[1][2])
	}
	if records[1][3] != "" {
		t.Fatalf("nil date should render empty, got %q", records[1][3])
	}
	if records[2][2] != "$12.50" {
		t.Fatalf("expected formatted total, got %q", records[2][2])
	}
	if records[2][3] != "2026-03-14" {
		t.Fatalf("date column should use date-only format, got %q", records[2][3])
	}
}

func TestRunExport_ZeroRowsHeaderOnly(t *testing.T) {
	exec, tokens := exportFixture(t, nil)

	file, appErr := exec.RunExport(context.Background(), exportToken(t, tokens), "csv", nil, nil)
	if appErr != nil {
		t.Fatalf("unexpected error: %v", appErr)
	}
	records := renderExport(t, file)
	if len(records) != 1 {
		t.Fatalf("expected header only, got %d records", len(records))
	}
}

func TestRunExport_ColumnSubsetInGivenOrder(t *testing.T) {
	exec, tokens := exportFixture(t, []table.Row{
		{"id": "o1", "status": "pending", "total": 1.0, "placed_at": nil},
	})

	file, appErr := exec.RunExport(context.Background(), exportToken(t, tokens), "slim", nil, nil)
	if appErr != nil {
		t.Fatalf("unexpected error: %v", appErr)
	}
	if file.Filename != "orders_slim.csv" {
		t.Fatalf("expected templated filename, got %q", file.Filename)
	}
	records := renderExport(t, file)
	if len(records[0]) != 2 || records[0][0] != "Status" || records[0][1] != "Order" {
		t.Fatalf("expected subset header [Status Order], got %v", records[0])
	}
}

func TestRunExport_FilteredSet(t *testing.T) {
	exec, tokens := exportFixture(t, []table.Row{
		{"id": "o1", "status": "paid", "total": 1.0, "placed_at": nil},
		{"id": "o2", "status": "pending", "total": 2.0, "placed_at": nil},
		{"id": "o3", "status": "paid", "total": 3.0, "placed_at": nil},
	})

	filters := []FilterClause{{Field: "status", Op: table.ClauseEq, Value: "paid"}}
	file, appErr := exec.RunExport(context.Background(), exportToken(t, tokens), "csv", filters, nil)
	if appErr != nil {
		t.Fatalf("unexpected error: %v", appErr)
	}
	records := renderExport(t, file)
	if len(records) != 3 {
		t.Fatalf("expected header + 2 paid rows, got %d", len(records))
	}

	badFilters := []FilterClause{{Field: "status", Op: table.ClauseGt, Value: "1"}}
	_, appErr = exec.RunExport(context.Background(), exportToken(t, tokens), "csv", badFilters, nil)
	if appErr == nil || appErr.Code != "INVALID_PARAMS" {
		t.Fatalf("expected INVALID_PARAMS for disallowed clause, got %v", appErr)
	}
}

func TestRunExport_Authorization(t *testing.T) {
	exec, tokens := exportFixture(t, nil)

	_, appErr := exec.RunExport(context.Background(), exportToken(t, tokens), "finance", nil, &table.UserContext{ID: "u1"})
	if appErr == nil || appErr.Code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %v", appErr)
	}

	_, appErr = exec.RunExport(context.Background(), exportToken(t, tokens), "finance", nil,
		&table.UserContext{ID: "u2", Roles: []string{"finance"}})
	if appErr != nil {
		t.Fatalf("unexpected error for finance role: %v", appErr)
	}

	_, appErr = exec.RunExport(context.Background(), exportToken(t, tokens), "missing", nil, nil)
	if appErr == nil || appErr.Code != "EXPORT_NOT_FOUND" {
		t.Fatalf("expected EXPORT_NOT_FOUND, got %v", appErr)
	}
}
