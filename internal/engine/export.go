package engine

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"tablekit-backend/internal/table"
)

// ExportFile is a streamable export: the filename to serve it under and a
// writer that emits the header row first, then data rows incrementally.
type ExportFile struct {
	Filename    string
	ContentType string
	WriteTo     func(w io.Writer) error
}

// RunExport resolves an export by name and produces a CSV over the full
// filtered, unpaginated row set. Pagination parameters are ignored by
// design: an export always covers everything the current filters match.
func (e *Executor) RunExport(ctx context.Context, token, exportName string, filters []FilterClause, user *table.UserContext) (*ExportFile, *AppError) {
	def, _, appErr := e.tokens.Verify(token)
	if appErr != nil {
		return nil, appErr
	}

	export := def.ExportByName(exportName)
	if export == nil {
		return nil, ExportNotFoundError(exportName)
	}
	if export.Authorize != nil && !export.Authorize(user) {
		return nil, ForbiddenError(fmt.Sprintf("Not allowed to export %s from %s", exportName, def.Name))
	}

	if errs := validateFilters(def, filters); len(errs) > 0 {
		return nil, InvalidParamsError(fmt.Sprintf("invalid filter on %s: %s", errs[0].Field, errs[0].Message))
	}

	orderBy, orderDir := "", ""
	if def.Config.DefaultSort != nil {
		orderBy, orderDir = def.Config.DefaultSort.Field, def.Config.DefaultSort.Direction
	}
	rows, err := e.source.FetchFiltered(ctx, def, filters, "", orderBy, orderDir)
	if err != nil {
		log.Printf("ERROR: export fetch for %s: %v", def.Name, err)
		return nil, NewAppError("INTERNAL_ERROR", 500, "Internal server error")
	}

	columns := exportColumns(def, export)

	return &ExportFile{
		Filename:    exportFilename(def, export),
		ContentType: "text/csv",
		WriteTo: func(w io.Writer) error {
			return writeCSV(w, columns, rows)
		},
	}, nil
}

// exportColumns returns the explicit ordered subset when the export names
// one, otherwise every visible non-action column.
func exportColumns(def *table.Definition, export *table.Export) []*table.Column {
	if len(export.Columns) > 0 {
		cols := make([]*table.Column, 0, len(export.Columns))
		for _, key := range export.Columns {
			if c := def.Column(key); c != nil && !c.IsAction() {
				cols = append(cols, c)
			}
		}
		return cols
	}
	var cols []*table.Column
	for i := range def.Columns {
		c := &def.Columns[i]
		if c.Visible && !c.IsAction() {
			cols = append(cols, c)
		}
	}
	return cols
}

// writeCSV emits a header of column labels, then one record per row.
// Exporting zero rows still emits the header.
func writeCSV(w io.Writer, columns []*table.Column, rows []table.Row) error {
	cw := csv.NewWriter(w)

	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.Label
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	cw.Flush()

	record := make([]string, len(columns))
	for _, row := range rows {
		for i, c := range columns {
			record[i] = formatValue(c, exportValue(c, row))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func exportValue(c *table.Column, row table.Row) any {
	var v any
	if c.Compute != nil {
		v = c.Compute(row)
	} else {
		v = row[c.Key]
	}
	if c.MapAs != nil {
		v = c.MapAs(v)
	}
	return v
}

// formatValue renders one cell: the column's custom formatter first, else
// a type-aware default. nil renders as an empty field.
func formatValue(c *table.Column, v any) string {
	if c.Format != nil {
		return c.Format(v)
	}
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case time.Time:
		if c.Type == table.ColumnDate {
			return val.Format("2006-01-02")
		}
		return val.Format(time.RFC3339)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(val, ", ")
	case map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// exportFilename applies the export's filename template, defaulting to
// {table}_{timestamp}.csv.
func exportFilename(def *table.Definition, export *table.Export) string {
	tmpl := export.Filename
	if tmpl == "" {
		tmpl = "{table}_{timestamp}.csv"
	}
	name := strings.ReplaceAll(tmpl, "{table}", def.Name)
	name = strings.ReplaceAll(name, "{timestamp}", time.Now().Format("20060102_150405"))
	return name
}
