package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"

	"github.com/geoyogesh/csvscan"
	"github.com/geoyogesh/csvscan/internal/csvformat"
	"github.com/geoyogesh/csvscan/internal/logging"
	"github.com/geoyogesh/csvscan/internal/record"
	"github.com/geoyogesh/csvscan/internal/scan"
	"github.com/geoyogesh/csvscan/internal/sql/parser"
	"github.com/geoyogesh/csvscan/internal/sql/planner"
)

// Result is the generic query result returned to the caller.
type Result struct {
	Columns []string `json:"columns,omitempty"`
	Types   []string `json:"types,omitempty"`
	Rows    [][]any  `json:"rows,omitempty"`

	// For CREATE/DROP this is 0; for scans it is the number of rows returned.
	AffectedRows int64 `json:"affected_rows"`
}

// executorCatalog is a small seam for unit-testing Executor without a real catalog.
type executorCatalog interface {
	Register(ctx context.Context, name, location string, opts csvformat.Options) (*csvscan.TableMeta, error)
	RegisterWithSchema(ctx context.Context, name, location string, opts csvformat.Options, schema record.Schema) (*csvscan.TableMeta, error)
	Table(name string) (*csvscan.TableMeta, error)
	ListTables() []*csvscan.TableMeta
	DropTable(name string) error
	Scan(meta *csvscan.TableMeta, projection []int, batchSize int, mem memory.Allocator) (scan.Operator, error)
}

// realCatalog adapts *csvscan.Catalog to executorCatalog.
type realCatalog struct {
	*csvscan.Catalog
}

func (r realCatalog) Scan(meta *csvscan.TableMeta, projection []int, batchSize int, mem memory.Allocator) (scan.Operator, error) {
	return r.Catalog.Scan(meta, projection, batchSize, mem)
}

// Executor executes plans against a Catalog.
type Executor struct {
	Catalog executorCatalog

	// Defaults fills the options CREATE EXTERNAL TABLE leaves out.
	Defaults csvformat.Options

	// Parallelism bounds the partitions COUNT(*) reads at once; <= 0 means one per partition.
	Parallelism int

	mem memory.Allocator
}

func NewExecutor(cat *csvscan.Catalog, defaults csvformat.Options) *Executor {
	return NewExecutorForTest(realCatalog{Catalog: cat}, defaults)
}

// NewExecutorForTest allows injecting a fake executorCatalog.
func NewExecutorForTest(cat executorCatalog, defaults csvformat.Options) *Executor {
	return &Executor{
		Catalog:  cat,
		Defaults: defaults,
		mem:      memory.DefaultAllocator,
	}
}

// WithAllocator sets the allocator used for record batches.
func (e *Executor) WithAllocator(mem memory.Allocator) *Executor {
	e.mem = mem
	return e
}

// ExecSQL is the top-level entry: statement string -> Result.
func (e *Executor) ExecSQL(ctx context.Context, sql string) (*Result, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}

	plan, err := planner.BuildPlan(stmt, e.Defaults)
	if err != nil {
		return nil, err
	}
	return e.execPlan(ctx, plan)
}

func (e *Executor) execPlan(ctx context.Context, p planner.Plan) (*Result, error) {
	switch plan := p.(type) {
	case *planner.CreateExternalTablePlan:
		return e.execCreateExternalTable(ctx, plan)
	case *planner.DropTablePlan:
		return e.execDropTable(plan)
	case *planner.DescribePlan:
		return e.execDescribe(plan)
	case *planner.ShowTablesPlan:
		return e.execShowTables()

	case *planner.ScanPlan:
		return e.execScan(ctx, plan)
	case *planner.CountPlan:
		return e.execCount(ctx, plan)

	default:
		return nil, fmt.Errorf("executor: unsupported plan type %T", p)
	}
}

func (e *Executor) execCreateExternalTable(ctx context.Context, p *planner.CreateExternalTablePlan) (*Result, error) {
	var err error
	if p.Schema != nil {
		_, err = e.Catalog.RegisterWithSchema(ctx, p.TableName, p.Location, p.Options, *p.Schema)
	} else {
		_, err = e.Catalog.Register(ctx, p.TableName, p.Location, p.Options)
	}
	if err != nil {
		return nil, err
	}
	return &Result{AffectedRows: 0}, nil
}

func (e *Executor) execDropTable(p *planner.DropTablePlan) (*Result, error) {
	if err := e.Catalog.DropTable(p.TableName); err != nil {
		return nil, err
	}
	return &Result{AffectedRows: 0}, nil
}

func (e *Executor) execDescribe(p *planner.DescribePlan) (*Result, error) {
	meta, err := e.Catalog.Table(p.TableName)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Columns: []string{"column_name", "data_type", "is_nullable"},
		Types:   []string{"utf8", "utf8", "utf8"},
	}
	for _, c := range meta.Schema.Cols {
		nullable := "NO"
		if c.Nullable {
			nullable = "YES"
		}
		res.Rows = append(res.Rows, []any{c.Name, c.Type.String(), nullable})
	}
	res.AffectedRows = int64(len(res.Rows))
	return res, nil
}

func (e *Executor) execShowTables() (*Result, error) {
	res := &Result{
		Columns: []string{"table_name", "location", "files", "inferred"},
		Types:   []string{"utf8", "utf8", "int64", "boolean"},
	}
	for _, m := range e.Catalog.ListTables() {
		res.Rows = append(res.Rows, []any{m.Name, m.Location, int64(len(m.Files)), m.Inferred})
	}
	res.AffectedRows = int64(len(res.Rows))
	return res, nil
}

// resolveProjection maps column names to schema indices. Nil names means all columns.
func resolveProjection(schema record.Schema, names []string) ([]int, error) {
	if names == nil {
		return nil, nil
	}
	idx := make([]int, 0, len(names))
	for _, n := range names {
		i := schema.IndexOf(n)
		if i < 0 {
			return nil, fmt.Errorf("executor: unknown column %q", n)
		}
		idx = append(idx, i)
	}
	return idx, nil
}

func (e *Executor) execScan(ctx context.Context, p *planner.ScanPlan) (*Result, error) {
	meta, err := e.Catalog.Table(p.TableName)
	if err != nil {
		return nil, err
	}
	proj, err := resolveProjection(meta.Schema, p.Columns)
	if err != nil {
		return nil, err
	}
	op, err := e.Catalog.Scan(meta, proj, 0, e.mem)
	if err != nil {
		return nil, err
	}

	projected, err := meta.Schema.Project(proj)
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: projected.Names()}
	for _, c := range projected.Cols {
		res.Types = append(res.Types, c.Type.String())
	}

	scanID := uuid.NewString()
	ctx = logging.WithFields(ctx, "scan_id", scanID, "table", p.TableName)
	log := logging.FromContext(ctx)
	start := time.Now()

	var batches int
	full := func() bool { return p.HasLimit && int64(len(res.Rows)) >= p.Limit }

	for part := 0; part < op.NumPartitions() && !full(); part++ {
		r, err := op.Open(ctx, part)
		if err != nil {
			return nil, err
		}
		for !full() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			rec, err := r.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				log.Warn("executor: scan failed",
					"partition", part,
					"kind", csvformat.KindOf(err).String(),
					"err", err,
				)
				return nil, err
			}
			batches++
			appendRows(res, rec, p.HasLimit, p.Limit)
			rec.Release()
		}
	}

	res.AffectedRows = int64(len(res.Rows))
	log.Debug("executor: scan finished",
		"rows", res.AffectedRows,
		"batches", batches,
		"partitions", op.NumPartitions(),
		"elapsed", time.Since(start),
	)
	return res, nil
}

// appendRows copies rec into res row by row, stopping at limit when set.
func appendRows(res *Result, rec arrow.Record, hasLimit bool, limit int64) {
	cols := rec.Columns()
	for i := 0; i < int(rec.NumRows()); i++ {
		if hasLimit && int64(len(res.Rows)) >= limit {
			return
		}
		row := make([]any, len(cols))
		for c, arr := range cols {
			row[c] = cellValue(arr, i)
		}
		res.Rows = append(res.Rows, row)
	}
}

// cellValue returns a JSON-safe Go value for row i of arr; nulls are nil.
// Non-finite floats are rendered as strings.
func cellValue(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.Int64:
		return a.Value(i)
	case *array.Float64:
		v := a.Value(i)
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return strconv.FormatFloat(v, 'g', -1, 64)
		}
		return v
	case *array.Boolean:
		return a.Value(i)
	case *array.String:
		// the record's buffers are released after the batch
		return strings.Clone(a.Value(i))
	default:
		return arr.ValueStr(i)
	}
}

func (e *Executor) execCount(ctx context.Context, p *planner.CountPlan) (*Result, error) {
	meta, err := e.Catalog.Table(p.TableName)
	if err != nil {
		return nil, err
	}
	// an empty projection still yields batches carrying row counts
	op, err := e.Catalog.Scan(meta, []int{}, 0, e.mem)
	if err != nil {
		return nil, err
	}

	ctx = logging.WithFields(ctx, "scan_id", uuid.NewString(), "table", p.TableName)
	counts, err := scan.CountRows(ctx, op, e.Parallelism)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, c := range counts {
		total += c
	}
	logging.FromContext(ctx).Debug("executor: count finished",
		"rows", total,
		"partitions", len(counts),
	)
	return &Result{
		Columns:      []string{"count"},
		Types:        []string{"int64"},
		Rows:         [][]any{{total}},
		AffectedRows: 1,
	}, nil
}
