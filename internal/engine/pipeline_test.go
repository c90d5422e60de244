package engine

import (
	"context"
	"testing"

	"tablekit-backend/internal/table"
)

func pipelineTestDef(t *testing.T) *table.Definition {
	t.Helper()
	def, err := table.New("users", "users").
		Column(table.Column{Key: "name", Type: table.ColumnText, Label: "Name", Visible: true}).
		Column(table.Column{Key: "display", Type: table.ColumnText, Label: "Display", Visible: true,
			Compute: func(row table.Row) any { return "user " + row["name"].(string) },
			MapAs:   func(v any) any { return v.(string) + "!" },
		}).
		Action(table.Action{
			Name: "delete", Label: "Delete",
			Disabled: func(row table.Row, _ *table.UserContext) bool {
				isAdmin, _ := row["isAdmin"].(bool)
				return isAdmin
			},
		}).
		BulkAction(table.BulkAction{
			Name: "archive", Label: "Archive",
			Handle: func(ctx context.Context, rows []table.Row) (string, error) { return "", nil },
		}).
		Build()
	if err != nil {
		t.Fatalf("build definition: %v", err)
	}
	return def
}

func TestRunPipeline_ActionState(t *testing.T) {
	def := pipelineTestDef(t)
	rows := []table.Row{
		{"id": 1, "name": "a", "isAdmin": false},
		{"id": 2, "name": "b", "isAdmin": true},
	}

	out := RunPipeline(def, rows, nil)
	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(out))
	}

	states0 := out[0]["_actions"].(map[string]ActionState)
	states1 := out[1]["_actions"].(map[string]ActionState)
	if states0["delete"].Disabled {
		t.Fatal("expected delete enabled for non-admin row")
	}
	if !states1["delete"].Disabled {
		t.Fatal("expected delete disabled for admin row")
	}
}

func TestRunPipeline_ComputeAndMap(t *testing.T) {
	def := pipelineTestDef(t)
	out := RunPipeline(def, []table.Row{{"id": 1, "name": "a"}}, nil)

	if got := out[0]["display"]; got != "user a!" {
		t.Fatalf("expected computed then mapped value, got %v", got)
	}
}

func TestRunPipeline_DoesNotMutateInput(t *testing.T) {
	def := pipelineTestDef(t)
	row := table.Row{"id": 1, "name": "a"}
	RunPipeline(def, []table.Row{row}, nil)

	if _, ok := row["_actions"]; ok {
		t.Fatal("pipeline mutated its input row")
	}
	if _, ok := row["display"]; ok {
		t.Fatal("pipeline wrote computed value into input row")
	}
}

func TestRunPipeline_Selectable(t *testing.T) {
	def := pipelineTestDef(t)
	out := RunPipeline(def, []table.Row{{"id": 1, "name": "a"}}, nil)
	if sel, ok := out[0]["_selectable"].(bool); !ok || !sel {
		t.Fatalf("expected default selectable true, got %v", out[0]["_selectable"])
	}

	// Without bulk actions, _selectable is not computed at all.
	plain, err := table.New("plain", "plain").
		Column(table.Column{Key: "name", Type: table.ColumnText, Label: "Name", Visible: true}).
		Build()
	if err != nil {
		t.Fatalf("build plain: %v", err)
	}
	out2 := RunPipeline(plain, []table.Row{{"name": "a"}}, nil)
	if _, ok := out2[0]["_selectable"]; ok {
		t.Fatal("expected no _selectable without bulk actions")
	}
}

func TestRunPipeline_PreservesOrder(t *testing.T) {
	def := pipelineTestDef(t)
	rows := []table.Row{{"name": "c"}, {"name": "a"}, {"name": "b"}}
	out := RunPipeline(def, rows, nil)
	for i, want := range []string{"c", "a", "b"} {
		if out[i]["name"] != want {
			t.Fatalf("row order changed at %d: got %v", i, out[i]["name"])
		}
	}
}
