package planner

import (
	"fmt"
	"strings"

	"github.com/geoyogesh/csvscan/internal/csvformat"
	"github.com/geoyogesh/csvscan/internal/record"
	"github.com/geoyogesh/csvscan/internal/sql/parser"
)

// BuildPlan builds a plan from an AST Statement. defaults fills the format
// options a CREATE EXTERNAL TABLE statement leaves out.
func BuildPlan(stmt parser.Statement, defaults csvformat.Options) (Plan, error) {
	switch s := stmt.(type) {
	case *parser.CreateExternalTableStmt:
		return buildCreateExternalTablePlan(s, defaults)
	case *parser.DropTableStmt:
		return &DropTablePlan{TableName: s.TableName}, nil
	case *parser.SelectStmt:
		return buildSelectPlan(s)
	case *parser.DescribeStmt:
		return &DescribePlan{TableName: s.TableName}, nil
	case *parser.ShowTablesStmt:
		return &ShowTablesPlan{}, nil
	default:
		return nil, fmt.Errorf("planner: unsupported statement type %T", stmt)
	}
}

func buildCreateExternalTablePlan(s *parser.CreateExternalTableStmt, defaults csvformat.Options) (Plan, error) {
	opts := defaults
	if s.HasHeader != nil {
		opts = opts.WithHasHeader(*s.HasHeader)
	}
	if s.Delimiter != nil {
		d, err := csvformat.ParseDelimiter(*s.Delimiter)
		if err != nil {
			return nil, fmt.Errorf("planner: %w", err)
		}
		opts = opts.WithDelimiter(d)
	}
	if s.SchemaInferMax != nil {
		opts = opts.WithSchemaInferMaxRec(*s.SchemaInferMax)
	}
	if s.BatchSize != nil {
		opts = opts.WithBatchSize(*s.BatchSize)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	plan := &CreateExternalTablePlan{
		TableName: s.TableName,
		Location:  s.Location,
		Options:   opts,
	}
	if len(s.Columns) == 0 {
		return plan, nil
	}

	seen := make(map[string]bool, len(s.Columns))
	cols := make([]record.Column, 0, len(s.Columns))
	for _, c := range s.Columns {
		if seen[c.Name] {
			return nil, fmt.Errorf("planner: duplicate column %q", c.Name)
		}
		seen[c.Name] = true

		colType, err := mapSQLType(c.Type)
		if err != nil {
			return nil, err
		}
		cols = append(cols, record.Column{
			Name:     c.Name,
			Type:     colType,
			Nullable: true, // default
		})
	}
	plan.Schema = &record.Schema{Cols: cols}
	return plan, nil
}

func buildSelectPlan(s *parser.SelectStmt) (Plan, error) {
	// LIMIT on COUNT(*) is ignored; the result is always one row.
	if s.Count {
		return &CountPlan{TableName: s.TableName}, nil
	}
	return &ScanPlan{
		TableName: s.TableName,
		Columns:   s.Columns,
		HasLimit:  s.HasLimit,
		Limit:     s.Limit,
	}, nil
}

func mapSQLType(t string) (record.ColumnType, error) {
	switch strings.ToUpper(t) {
	case "VARCHAR", "CHAR":
		return record.ColText, nil
	case "REAL":
		return record.ColFloat64, nil
	}
	ct, err := record.ParseColumnType(t)
	if err != nil {
		return 0, fmt.Errorf("unsupported column type: %s", t)
	}
	return ct, nil
}
