// Package fixture loads seed data into a database from JSON or YAML files.
//
// A fixture file holds a list of records, each naming the table it belongs
// to, an optional primary key and the column values:
//
//	[
//	  {"model": "users", "pk": 1, "fields": {"email": "ada@example.com"}}
//	]
//
// or in YAML:
//
//	# users.yaml
//	- model: users
//	  pk: 1
//	  fields:
//	    email: ada@example.com
package fixture

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Record is one row of a fixture file.
type Record struct {
	Model  string                 `json:"model" yaml:"model"`
	PK     interface{}            `json:"pk,omitempty" yaml:"pk,omitempty"`
	Fields map[string]interface{} `json:"fields" yaml:"fields"`
}

// Supported fixture file extensions, in resolution order.
var Extensions = []string{".json", ".yaml", ".yml"}

// Parse decodes the fixture file name from data. The format follows the
// file extension.
func Parse(name string, data []byte) ([]Record, error) {
	var (
		records []Record
		err     error
	)
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		records, err = parseJSON(data)
	case ".yaml", ".yml":
		records, err = parseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported fixture format %q", path.Ext(name))
	}
	if err != nil {
		return nil, err
	}

	for i, r := range records {
		if r.Model == "" {
			return nil, fmt.Errorf("record %d: missing model", i)
		}
		if r.PK == nil && len(r.Fields) == 0 {
			return nil, fmt.Errorf("record %d (%s): no pk and no fields", i, r.Model)
		}
	}
	return records, nil
}

func parseJSON(data []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var records []Record
	if err := dec.Decode(&records); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	for i := range records {
		records[i].PK = normalize(records[i].PK)
		for k, v := range records[i].Fields {
			records[i].Fields[k] = normalize(v)
		}
	}
	return records, nil
}

func parseYAML(data []byte) ([]Record, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var records []Record
	if err := dec.Decode(&records); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return records, nil
}

// normalize turns JSON numbers into int64 when integral and float64
// otherwise, also inside nested objects and arrays.
func normalize(v interface{}) interface{} {
	var n json.Number
	switch x := v.(type) {
	case json.Number:
		n = x
	case map[string]interface{}:
		for k, e := range x {
			x[k] = normalize(e)
		}
		return x
	case []interface{}:
		for i, e := range x {
			x[i] = normalize(e)
		}
		return x
	default:
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
