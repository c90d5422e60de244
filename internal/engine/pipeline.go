package engine

import "tablekit-backend/internal/table"

// ActionState is the per-row state of one action.
type ActionState struct {
	URL      *string `json:"url"`
	Disabled bool    `json:"disabled"`
	Hidden   bool    `json:"hidden"`
}

// RunPipeline computes display values, per-row action state and
// selectability for every row of a page. Row order is preserved; the
// input rows are not mutated. Callbacks must be side-effect-free.
func RunPipeline(def *table.Definition, rows []table.Row, user *table.UserContext) []table.Row {
	out := make([]table.Row, len(rows))
	for i, row := range rows {
		out[i] = pipelineRow(def, row, user)
	}
	return out
}

func pipelineRow(def *table.Definition, row table.Row, user *table.UserContext) table.Row {
	result := make(table.Row, len(row)+2)
	for k, v := range row {
		result[k] = v
	}

	for i := range def.Columns {
		c := &def.Columns[i]
		if c.IsAction() {
			continue
		}
		val, present := result[c.Key], true
		if c.Compute != nil {
			val = c.Compute(row)
		} else if _, ok := row[c.Key]; !ok {
			present = false
		}
		if !present && c.MapAs == nil {
			continue
		}
		if c.MapAs != nil {
			val = c.MapAs(val)
		}
		result[c.Key] = val
	}

	if len(def.Actions) > 0 {
		states := make(map[string]ActionState, len(def.Actions))
		for i := range def.Actions {
			a := &def.Actions[i]
			s := ActionState{}
			if a.URL != nil {
				u := a.URL(row)
				s.URL = &u
			}
			if a.Disabled != nil {
				s.Disabled = a.Disabled(row, user)
			}
			if a.Hidden != nil {
				s.Hidden = a.Hidden(row, user)
			}
			states[a.Name] = s
		}
		result["_actions"] = states
	}

	if def.HasBulkActions() {
		result["_selectable"] = def.Selectable(row, user)
	}

	return result
}
