package engine

import (
	"context"
	"fmt"
	"log"

	"tablekit-backend/internal/table"
)

type SelectionMode string

const (
	SelectionExplicit  SelectionMode = "explicit"
	SelectionAll       SelectionMode = "all"
	SelectionAllExcept SelectionMode = "all_except"
)

// Selection describes which rows a bulk action targets.
type Selection struct {
	Mode SelectionMode `json:"mode"`
	IDs  []string      `json:"ids"`
}

// ResolveSelection turns a selection descriptor into a concrete row set.
// The "all" and "all_except" modes re-derive the filter predicate from the
// client-supplied filters of this request, not a server snapshot, so the
// selection scopes rather than secures; authorization happens on the bulk
// action itself.
func (e *Executor) ResolveSelection(ctx context.Context, def *table.Definition, sel Selection, filters []FilterClause) ([]table.Row, *AppError) {
	switch sel.Mode {
	case SelectionExplicit:
		rows, err := e.source.FetchByIDs(ctx, def, sel.IDs)
		if err != nil {
			log.Printf("ERROR: fetch selection for %s: %v", def.Name, err)
			return nil, NewAppError("INTERNAL_ERROR", 500, "Internal server error")
		}
		return rows, nil

	case SelectionAll, SelectionAllExcept:
		if errs := validateFilters(def, filters); len(errs) > 0 {
			return nil, InvalidSelectionError(fmt.Sprintf("invalid filter on %s: %s", errs[0].Field, errs[0].Message))
		}
		rows, err := e.source.FetchFiltered(ctx, def, filters, "", "", "")
		if err != nil {
			log.Printf("ERROR: fetch filtered set for %s: %v", def.Name, err)
			return nil, NewAppError("INTERNAL_ERROR", 500, "Internal server error")
		}
		if sel.Mode == SelectionAll {
			return rows, nil
		}
		excluded := make(map[string]bool, len(sel.IDs))
		for _, id := range sel.IDs {
			excluded[id] = true
		}
		var kept []table.Row
		for _, row := range rows {
			if !excluded[fmt.Sprintf("%v", row[def.KeyColumn])] {
				kept = append(kept, row)
			}
		}
		return kept, nil

	default:
		return nil, InvalidSelectionError(fmt.Sprintf("unknown selection mode: %s", sel.Mode))
	}
}

func validateFilters(def *table.Definition, filters []FilterClause) []FieldError {
	var errs []FieldError
	for _, f := range filters {
		flt := def.FilterByField(f.Field)
		if flt == nil {
			errs = append(errs, FieldError{Field: f.Field, Message: "unknown filter field"})
			continue
		}
		if !flt.HasClause(f.Op) {
			errs = append(errs, FieldError{Field: f.Field, Message: fmt.Sprintf("clause %s not allowed", f.Op)})
			continue
		}
		if f.Op == table.ClauseBetween {
			if vals, ok := f.Value.([]any); !ok || len(vals) != 2 {
				errs = append(errs, FieldError{Field: f.Field, Message: "between requires exactly two bounds"})
			}
		}
	}
	return errs
}

// ExecuteBulk runs a bulk action over the resolved selection in chunks.
// Chunks run sequentially and execution stops on the first chunk failure;
// prior chunks are not rolled back (at-least-once, non-transactional).
// Partial failures report the processed count up to the failure.
func (e *Executor) ExecuteBulk(ctx context.Context, token, actionName string, sel Selection, filters []FilterClause, user *table.UserContext) (*ActionResponse, *AppError) {
	def, _, appErr := e.tokens.Verify(token)
	if appErr != nil {
		return nil, appErr
	}

	bulk := def.BulkActionByName(actionName)
	if bulk == nil {
		return nil, ActionNotFoundError(actionName)
	}
	if bulk.Handle == nil {
		return nil, HandlerFailedError(fmt.Sprintf("Bulk action %s has no handler", actionName))
	}

	if bulk.Authorize != nil && !bulk.Authorize(user) {
		return nil, ForbiddenError(fmt.Sprintf("Not allowed to run %s on %s", actionName, def.Name))
	}

	rows, appErr := e.ResolveSelection(ctx, def, sel, filters)
	if appErr != nil {
		return nil, appErr
	}
	if len(rows) == 0 {
		return &ActionResponse{Success: true, Count: 0}, nil
	}

	if bulk.Before != nil {
		if err := safeBefore(ctx, bulk, rows); err != nil {
			return nil, HandlerFailedError(err.Error())
		}
	}

	processed := 0
	var firstMessage string
	for _, chunk := range chunkRows(rows, bulk.ChunkSize) {
		msg, err := safeChunk(ctx, bulk, chunk)
		if err != nil {
			return &ActionResponse{
				Success: false,
				Message: err.Error(),
				Count:   processed,
			}, nil
		}
		processed += len(chunk)
		if firstMessage == "" {
			firstMessage = msg
		}
	}

	if bulk.After != nil {
		safeAfter(ctx, bulk, rows)
	}

	return &ActionResponse{Success: true, Message: firstMessage, Count: processed}, nil
}

// chunkRows splits rows into size-bounded batches, preserving row order.
func chunkRows(rows []table.Row, size int) [][]table.Row {
	if size <= 0 {
		size = table.DefaultChunkSize
	}
	var chunks [][]table.Row
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}

func safeChunk(ctx context.Context, bulk *table.BulkAction, chunk []table.Row) (msg string, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: bulk action %s panicked: %v", bulk.Name, r)
			msg, err = "", fmt.Errorf("bulk action failed")
		}
	}()
	return bulk.Handle(ctx, chunk)
}

func safeBefore(ctx context.Context, bulk *table.BulkAction, rows []table.Row) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: bulk action %s before hook panicked: %v", bulk.Name, r)
			err = fmt.Errorf("bulk action failed")
		}
	}()
	return bulk.Before(ctx, rows)
}

func safeAfter(ctx context.Context, bulk *table.BulkAction, rows []table.Row) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: bulk action %s after hook panicked: %v", bulk.Name, r)
		}
	}()
	bulk.After(ctx, rows)
}
