package csvscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/spf13/afero"

	"github.com/geoyogesh/csvscan/internal/csvformat"
	"github.com/geoyogesh/csvscan/internal/record"
	"github.com/geoyogesh/csvscan/internal/scan"
	"github.com/geoyogesh/csvscan/internal/source"
	"github.com/geoyogesh/csvscan/pkg/cache"
)

var (
	ErrTableExists   = errors.New("catalog: table already exists")
	ErrTableNotFound = errors.New("catalog: table not found")
	ErrBadTableName  = errors.New("catalog: invalid table name")
)

const DefaultSchemaCacheSize = 128

// TableMeta describes one registered table.
type TableMeta struct {
	Name     string            `json:"name"`
	Location string            `json:"location"`
	Files    []string          `json:"files"`
	Options  csvformat.Options `json:"options"`
	Schema   record.Schema     `json:"schema"`
	// Inferred is false when the schema was supplied by the caller.
	Inferred  bool      `json:"inferred"`
	CreatedAt time.Time `json:"created_at"`
}

// Catalog maps table names to CSV locations and their schemas.
// It is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	tables  map[string]*TableMeta
	sources *source.Registry
	schemas *cache.LRU[schemaKey, record.Schema]

	// optional JSON persistence
	metaFS   afero.Fs
	metaPath string
}

// schemaKey identifies one inference: same file, same layout options.
type schemaKey struct {
	location  string
	hasHeader bool
	delimiter byte
	maxRec    int
}

func NewCatalog(sources *source.Registry, schemaCacheSize int) *Catalog {
	return &Catalog{
		tables:  make(map[string]*TableMeta),
		sources: sources,
		schemas: cache.NewLRU[schemaKey, record.Schema](schemaCacheSize),
	}
}

func (c *Catalog) Sources() *source.Registry { return c.sources }

// Persist loads the catalog file at path if it exists and rewrites it after every change.
func (c *Catalog) Persist(fs afero.Fs, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metaFS, c.metaPath = fs, path

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("catalog: read %s: %w", path, err)
	}

	var metas []*TableMeta
	if err := json.Unmarshal(data, &metas); err != nil {
		return fmt.Errorf("catalog: decode %s: %w", path, err)
	}
	for _, m := range metas {
		c.tables[m.Name] = m
	}
	slog.Info("catalog: loaded", "path", path, "tables", len(metas))
	return nil
}

// writeMetaLocked rewrites the catalog file. Caller holds c.mu.
func (c *Catalog) writeMetaLocked() error {
	if c.metaFS == nil {
		return nil
	}
	metas := make([]*TableMeta, 0, len(c.tables))
	for _, name := range c.sortedNamesLocked() {
		metas = append(metas, c.tables[name])
	}

	data, err := json.MarshalIndent(metas, "", "  ")
	if err != nil {
		return err
	}
	if err := c.metaFS.MkdirAll(filepath.Dir(c.metaPath), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(c.metaFS, c.metaPath, data, 0o644)
}

// Register adds a table whose schema is inferred from its first file.
// A directory location expands to every file carrying the options' extension.
func (c *Catalog) Register(ctx context.Context, name, location string, opts csvformat.Options) (*TableMeta, error) {
	meta, err := c.prepare(ctx, name, location, opts)
	if err != nil {
		return nil, err
	}

	schema, err := c.inferCached(ctx, meta.Files[0], meta.Options)
	if err != nil {
		return nil, err
	}
	meta.Schema = schema
	meta.Inferred = true

	return meta, c.store(meta)
}

// RegisterWithSchema adds a table with a caller-supplied schema; nothing is read.
func (c *Catalog) RegisterWithSchema(ctx context.Context, name, location string, opts csvformat.Options, schema record.Schema) (*TableMeta, error) {
	meta, err := c.prepare(ctx, name, location, opts)
	if err != nil {
		return nil, err
	}
	meta.Schema = schema
	return meta, c.store(meta)
}

func (c *Catalog) prepare(ctx context.Context, name, location string, opts csvformat.Options) (*TableMeta, error) {
	if err := validateIdent(name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadTableName, err)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if ext := csvformat.DetectExtension(location); ext != "" {
		opts.FileExtension = ext
	}

	c.mu.RLock()
	_, exists := c.tables[name]
	c.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
	}

	files, err := c.sources.List(ctx, location, opts.ExtensionWithDot())
	if err != nil {
		return nil, err
	}
	meta := &TableMeta{
		Name:      name,
		Location:  location,
		Options:   opts,
		CreatedAt: time.Now(),
	}
	for _, f := range files {
		meta.Files = append(meta.Files, f.Location)
	}
	if len(meta.Files) == 0 {
		return nil, &source.AcquisitionError{Location: location, Err: errors.New("no files")}
	}
	return meta, nil
}

func (c *Catalog) store(meta *TableMeta) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tables[meta.Name]; exists {
		return fmt.Errorf("%w: %s", ErrTableExists, meta.Name)
	}
	c.tables[meta.Name] = meta
	if err := c.writeMetaLocked(); err != nil {
		delete(c.tables, meta.Name)
		return fmt.Errorf("catalog: persist: %w", err)
	}

	slog.Info("catalog: table registered",
		"table", meta.Name,
		"files", len(meta.Files),
		"columns", meta.Schema.NumCols(),
		"inferred", meta.Inferred,
	)
	return nil
}

func (c *Catalog) inferCached(ctx context.Context, location string, opts csvformat.Options) (record.Schema, error) {
	key := schemaKey{
		location:  location,
		hasHeader: opts.HasHeader,
		delimiter: opts.Delimiter,
		maxRec:    opts.SchemaInferMaxRec,
	}
	if s, ok := c.schemas.Get(key); ok {
		slog.Debug("catalog: schema cache hit", "location", location)
		return s, nil
	}

	s, err := scan.InferSchema(ctx, c.sources, []string{location}, opts)
	if err != nil {
		return record.Schema{}, err
	}
	c.schemas.Put(key, s)
	return s, nil
}

func (c *Catalog) Table(name string) (*TableMeta, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	meta, ok := c.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return meta, nil
}

// ListTables returns the registered tables sorted by name.
func (c *Catalog) ListTables() []*TableMeta {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*TableMeta, 0, len(c.tables))
	for _, name := range c.sortedNamesLocked() {
		out = append(out, c.tables[name])
	}
	return out
}

func (c *Catalog) sortedNamesLocked() []string {
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	meta, ok := c.tables[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	delete(c.tables, name)
	if err := c.writeMetaLocked(); err != nil {
		c.tables[name] = meta
		return fmt.Errorf("catalog: persist: %w", err)
	}
	return nil
}

// Scan builds a scan over meta with one partition per file.
func (c *Catalog) Scan(meta *TableMeta, projection []int, batchSize int, mem memory.Allocator) (*scan.CSVScan, error) {
	groups := make([][]string, len(meta.Files))
	for i, f := range meta.Files {
		groups[i] = []string{f}
	}
	return scan.NewCSVScan(scan.Config{
		Options:    meta.Options,
		FileSchema: meta.Schema,
		Projection: projection,
		FileGroups: groups,
		BatchSize:  batchSize,
		Allocator:  mem,
	}, c.sources)
}

// validateIdent: first char letter or '_', rest letters, digits or '_'.
func validateIdent(s string) error {
	if s == "" || strings.TrimSpace(s) != s {
		return fmt.Errorf("invalid identifier %q", s)
	}
	for i, r := range s {
		if i == 0 && !unicode.IsLetter(r) && r != '_' {
			return fmt.Errorf("invalid identifier %q", s)
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return fmt.Errorf("invalid identifier %q", s)
		}
	}
	return nil
}
