package csvformat

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

const (
	DefaultDelimiter         byte = ','
	DefaultSchemaInferMaxRec      = 1000
	DefaultBatchSize              = 8192
	DefaultFileExtension          = ".csv"

	// maxTypeScanRecords bounds how many sampled records feed the per-column type decision,
	// independent of SchemaInferMaxRec.
	maxTypeScanRecords = 100
)

// Options describes how a delimited file is laid out and how it is read.
// It is a value type; the With* methods return modified copies.
type Options struct {
	HasHeader bool `mapstructure:"has_header" json:"has_header" yaml:"has_header"`
	Delimiter byte `mapstructure:"delimiter" json:"delimiter" yaml:"delimiter"`
	// SchemaInferMaxRec caps the sample pool used by Infer. Zero means DefaultSchemaInferMaxRec.
	SchemaInferMaxRec int    `mapstructure:"schema_infer_max_rec" json:"schema_infer_max_rec" yaml:"schema_infer_max_rec"`
	BatchSize         int    `mapstructure:"batch_size" json:"batch_size" yaml:"batch_size"`
	FileExtension     string `mapstructure:"file_extension" json:"file_extension" yaml:"file_extension"`
}

func DefaultOptions() Options {
	return Options{
		HasHeader:         true,
		Delimiter:         DefaultDelimiter,
		SchemaInferMaxRec: DefaultSchemaInferMaxRec,
		BatchSize:         DefaultBatchSize,
		FileExtension:     DefaultFileExtension,
	}
}

func (o Options) WithHasHeader(v bool) Options {
	o.HasHeader = v
	return o
}

func (o Options) WithDelimiter(d byte) Options {
	o.Delimiter = d
	return o
}

func (o Options) WithSchemaInferMaxRec(n int) Options {
	o.SchemaInferMaxRec = n
	return o
}

func (o Options) WithBatchSize(n int) Options {
	o.BatchSize = n
	return o
}

func (o Options) WithFileExtension(ext string) Options {
	o.FileExtension = ext
	return o
}

// Validate reports whether the options can drive a reader.
func (o Options) Validate() error {
	if o.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be > 0, got %d", ErrInvalidOptions, o.BatchSize)
	}
	if o.SchemaInferMaxRec < 0 {
		return fmt.Errorf("%w: schema_infer_max_rec must be >= 0, got %d", ErrInvalidOptions, o.SchemaInferMaxRec)
	}
	if err := validDelimiter(o.Delimiter); err != nil {
		return err
	}
	return nil
}

func validDelimiter(d byte) error {
	switch {
	case d >= utf8.RuneSelf:
		return fmt.Errorf("%w: delimiter 0x%02x is not a single ASCII byte", ErrInvalidOptions, d)
	case d == '"', d == '\r', d == '\n', d == 0:
		return fmt.Errorf("%w: delimiter %q is not allowed", ErrInvalidOptions, d)
	}
	return nil
}

// inferLimit is the effective size of the inference sample pool.
func (o Options) inferLimit() int {
	if o.SchemaInferMaxRec == 0 {
		return DefaultSchemaInferMaxRec
	}
	return o.SchemaInferMaxRec
}

// ExtensionWithDot returns the file extension with a leading dot, or "" when unset.
func (o Options) ExtensionWithDot() string {
	ext := strings.TrimSpace(o.FileExtension)
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}

// DetectExtension returns the extension of the last path element of a location
// (query strings and fragments are ignored), or "" if it has none.
func DetectExtension(location string) string {
	if i := strings.IndexAny(location, "?#"); i >= 0 {
		location = location[:i]
	}
	return strings.ToLower(path.Ext(location))
}

// ParseDelimiter turns a user-facing delimiter spelling into a single byte.
// It accepts a literal character, an escaped tab ("\t") and the names tab, comma, pipe and semicolon.
func ParseDelimiter(s string) (byte, error) {
	switch strings.ToLower(s) {
	case "tab", `\t`:
		return '\t', nil
	case "comma":
		return ',', nil
	case "pipe":
		return '|', nil
	case "semicolon":
		return ';', nil
	}
	if len(s) != 1 {
		return 0, fmt.Errorf("%w: delimiter %q must be a single byte", ErrInvalidOptions, s)
	}
	if err := validDelimiter(s[0]); err != nil {
		return 0, err
	}
	return s[0], nil
}
