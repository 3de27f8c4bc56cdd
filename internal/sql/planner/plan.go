package planner

import (
	"github.com/geoyogesh/csvscan/internal/csvformat"
	"github.com/geoyogesh/csvscan/internal/record"
)

// Plan is the interface for executable plans.
type Plan interface {
	planNode()
}

// ----- Plan nodes -----

// CreateExternalTablePlan registers Location under TableName.
// A nil Schema means the schema is inferred from the first file.
type CreateExternalTablePlan struct {
	TableName string
	Location  string
	Options   csvformat.Options
	Schema    *record.Schema
}

func (*CreateExternalTablePlan) planNode() {}

type DropTablePlan struct {
	TableName string
}

func (*DropTablePlan) planNode() {}

// ScanPlan streams rows of TableName. Nil Columns means every column.
type ScanPlan struct {
	TableName string
	Columns   []string
	HasLimit  bool
	Limit     int64
}

func (*ScanPlan) planNode() {}

type CountPlan struct {
	TableName string
}

func (*CountPlan) planNode() {}

type DescribePlan struct {
	TableName string
}

func (*DescribePlan) planNode() {}

type ShowTablesPlan struct{}

func (*ShowTablesPlan) planNode() {}
