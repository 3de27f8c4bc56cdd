package record

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ReadSchemaYAML decodes a schema file of the form:
//
//	columns:
//	  - name: id
//	    type: int64
//	    nullable: true
func ReadSchemaYAML(r io.Reader) (Schema, error) {
	var s Schema
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return Schema{}, fmt.Errorf("record: decode schema yaml: %w", err)
	}
	if len(s.Cols) == 0 {
		return Schema{}, fmt.Errorf("record: schema yaml has no columns")
	}
	for i, c := range s.Cols {
		if c.Name == "" {
			return Schema{}, fmt.Errorf("record: schema yaml column %d has no name", i)
		}
	}
	return s, nil
}

// WriteSchemaYAML encodes s in the format read by ReadSchemaYAML.
func WriteSchemaYAML(w io.Writer, s Schema) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("record: encode schema yaml: %w", err)
	}
	return enc.Close()
}
