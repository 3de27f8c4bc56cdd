package parser

// Statement is the root interface for all statements.
type Statement interface {
	stmtNode()
}

// ----- CREATE EXTERNAL TABLE -----
type ColumnDef struct {
	Name string
	Type string // "INT", "DOUBLE", "BOOLEAN", "TEXT", ...
}

// CreateExternalTableStmt registers a CSV location as a table.
// Nil option fields were not written and take the session defaults.
type CreateExternalTableStmt struct {
	TableName string
	Columns   []ColumnDef // empty: infer from the data
	FileType  string
	Location  string

	HasHeader      *bool
	Delimiter      *string
	SchemaInferMax *int
	BatchSize      *int
}

func (*CreateExternalTableStmt) stmtNode() {}

// ----- DROP TABLE -----
type DropTableStmt struct {
	TableName string
}

func (*DropTableStmt) stmtNode() {}

// ----- SELECT -----
type SelectStmt struct {
	TableName string
	Columns   []string // nil means *
	Count     bool     // SELECT COUNT(*)
	HasLimit  bool
	Limit     int64
}

func (*SelectStmt) stmtNode() {}

// ----- DESCRIBE / SHOW -----
type DescribeStmt struct {
	TableName string
}

func (*DescribeStmt) stmtNode() {}

type ShowTablesStmt struct{}

func (*ShowTablesStmt) stmtNode() {}
