package main

import (
	"context"
	"fmt"

	"tablekit-backend/internal/store"
	"tablekit-backend/internal/table"
)

// registerTables builds the application's table definitions. Definitions
// are assembled once here and never re-derived per request.
func registerTables(registry *table.Registry, db *store.Store) error {
	orders, err := ordersTable(db)
	if err != nil {
		return err
	}
	registry.Register(orders)

	customers, err := customersTable()
	if err != nil {
		return err
	}
	registry.Register(customers)
	return nil
}

func ordersTable(db *store.Store) (*table.Definition, error) {
	return table.New("orders", "orders").
		DefaultSort("created_at", "desc").
		PerPage(25, 10, 25, 50, 100).
		StickyHeader().
		SearchPlaceholder("Search orders...").
		EnableViews().
		Column(table.Column{Key: "number", Type: table.ColumnText, Label: "Order", Sortable: true, Searchable: true, Visible: true, Stickable: true}).
		Column(table.Column{Key: "customer_name", Type: table.ColumnText, Label: "Customer", Sortable: true, Searchable: true, Visible: true}).
		Column(table.Column{Key: "status", Type: table.ColumnBadge, Label: "Status", Sortable: true, Visible: true,
			MapAs: statusLabel}).
		Column(table.Column{Key: "total", Type: table.ColumnNumeric, Label: "Total", Sortable: true, Visible: true, Alignment: "right"}).
		Column(table.Column{Key: "created_at", Type: table.ColumnDateTime, Label: "Placed", Sortable: true, Visible: true, Toggleable: true}).
		Column(table.Column{Key: "_row_actions", Type: table.ColumnAction, Label: ""}).
		Filter(table.Filter{Field: "status", Type: table.FilterSet, Label: "Status",
			Clauses:       []table.Clause{table.ClauseEq, table.ClauseIn, table.ClauseNeq},
			DefaultClause: table.ClauseEq,
			Options: []table.FilterOption{
				{Value: "pending", Label: "Pending"},
				{Value: "paid", Label: "Paid"},
				{Value: "shipped", Label: "Shipped"},
				{Value: "cancelled", Label: "Cancelled"},
			}}).
		Filter(table.Filter{Field: "total", Type: table.FilterNumeric, Label: "Total",
			Clauses:       []table.Clause{table.ClauseGte, table.ClauseLte, table.ClauseBetween},
			DefaultClause: table.ClauseGte}).
		Filter(table.Filter{Field: "created_at", Type: table.FilterDateTime, Label: "Placed",
			Clauses:       []table.Clause{table.ClauseGte, table.ClauseLte, table.ClauseBetween},
			DefaultClause: table.ClauseGte}).
		Action(table.Action{
			Name: "view", Label: "View", Variant: "default",
			URL: func(row table.Row) string { return fmt.Sprintf("/orders/%v", row["id"]) },
		}).
		Action(table.Action{
			Name: "mark_paid", Label: "Mark paid", Variant: "primary",
			DisabledWhen:   `row.status != "pending"`,
			SuccessMessage: "Order marked as paid",
			Handle: func(ctx context.Context, row table.Row) (string, error) {
				_, err := store.Exec(ctx, db.Pool,
					"UPDATE orders SET status = 'paid' WHERE id = $1", row["id"])
				return "", err
			},
		}).
		Action(table.Action{
			Name: "cancel", Label: "Cancel", Variant: "danger",
			HiddenWhen:   `row.status == "cancelled" || row.status == "shipped"`,
			Confirmation: &table.Confirmation{Title: "Cancel order?", Message: "This cannot be undone."},
			Authorize:    func(user *table.UserContext) bool { return user.HasRole("manager") || user.IsAdmin() },
			Handle: func(ctx context.Context, row table.Row) (string, error) {
				_, err := store.Exec(ctx, db.Pool,
					"UPDATE orders SET status = 'cancelled' WHERE id = $1", row["id"])
				return "Order cancelled", err
			},
		}).
		BulkAction(table.BulkAction{
			Name: "archive", Label: "Archive", Variant: "default",
			ChunkSize:    200,
			Confirmation: &table.Confirmation{Title: "Archive selected orders?"},
			Handle: func(ctx context.Context, rows []table.Row) (string, error) {
				ids := make([]string, len(rows))
				for i, r := range rows {
					ids[i] = fmt.Sprintf("%v", r["id"])
				}
				_, err := store.Exec(ctx, db.Pool,
					"UPDATE orders SET archived = TRUE WHERE id = ANY($1)", ids)
				return "", err
			},
		}).
		SelectableWhen(func(row table.Row, user *table.UserContext) bool {
			archived, _ := row["archived"].(bool)
			return !archived
		}).
		Export(table.Export{
			Name: "csv", Label: "Export CSV",
			Columns: []string{"number", "customer_name", "status", "total", "created_at"},
		}).
		EmptyState(table.EmptyState{Title: "No orders yet", Message: "Orders appear here as soon as customers place them."}).
		Build()
}

func customersTable() (*table.Definition, error) {
	return table.New("customers", "customers").
		DefaultSort("name", "asc").
		PerPage(25).
		SearchPlaceholder("Search customers...").
		Column(table.Column{Key: "name", Type: table.ColumnText, Label: "Name", Sortable: true, Searchable: true, Visible: true}).
		Column(table.Column{Key: "email", Type: table.ColumnText, Label: "Email", Searchable: true, Visible: true}).
		Column(table.Column{Key: "lifetime_value", Type: table.ColumnNumeric, Label: "Lifetime value", Visible: true, Alignment: "right",
			ComputeExpr: `row.total_spent ?? 0`}).
		Column(table.Column{Key: "created_at", Type: table.ColumnDate, Label: "Since", Sortable: true, Visible: true, Toggleable: true}).
		Filter(table.Filter{Field: "created_at", Type: table.FilterDate, Label: "Since",
			Clauses: []table.Clause{table.ClauseGte, table.ClauseLte, table.ClauseBetween}}).
		Export(table.Export{Name: "csv", Label: "Export CSV", Filename: "customers_{timestamp}.csv"}).
		Build()
}

func statusLabel(v any) any {
	labels := map[string]string{
		"pending":   "Pending",
		"paid":      "Paid",
		"shipped":   "Shipped",
		"cancelled": "Cancelled",
	}
	if s, ok := v.(string); ok {
		if label, ok := labels[s]; ok {
			return label
		}
	}
	return v
}
