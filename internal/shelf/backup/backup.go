// Package backup exports and imports the whole local store as a single file.
//
// Three formats are supported, picked from the file extension:
//
//	.jsonl, .ndjson   one {"format","kind","data"} object per line
//	.yaml, .yml       one document with records grouped by kind
//	.toml             the same document as TOML
//
// Bundles keep sync state (synced_at, is_dirty), so restoring a backup does
// not force a full push.
package backup

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/inkshelf/internal/shelf/schema"
)

// FormatVersion is written into every bundle.
const FormatVersion = "inkshelf/v1"

// Format is a bundle encoding.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
	FormatTOML  Format = "toml"
)

// ErrUnknownFormat is returned for file extensions with no matching format.
var ErrUnknownFormat = errors.New("unknown backup format")

// FormatFor picks the format from a file name's extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("%w: %q (use .jsonl, .yaml or .toml)", ErrUnknownFormat, filepath.Ext(path))
}

// Source lists records for export.
type Source interface {
	List(ctx context.Context, kind schema.Kind) ([]schema.Record, error)
}

// Sink stores imported records.
type Sink interface {
	Put(ctx context.Context, rec schema.Record) error
}

// Result contains statistics about an export or import.
type Result struct {
	Records int
	ByKind  map[schema.Kind]int
	Errors  []string
}

func newResult() *Result {
	return &Result{ByKind: make(map[schema.Kind]int)}
}

func (r *Result) add(kind schema.Kind) {
	r.Records++
	r.ByKind[kind]++
}

// line is one JSONL entry.
type line struct {
	Format string          `json:"format"`
	Kind   schema.Kind     `json:"kind"`
	Data   json.RawMessage `json:"data"`
}

// document is the YAML and TOML layout.
type document struct {
	Format     string                      `yaml:"format" toml:"format"`
	ExportedAt string                      `yaml:"exported_at" toml:"exported_at"`
	Records    map[string][]map[string]any `yaml:"records" toml:"records"`
}

// Export writes every record from src to w.
func Export(ctx context.Context, src Source, w io.Writer, format Format) (*Result, error) {
	result := newResult()
	recs := make(map[schema.Kind][]schema.Record)
	for _, kind := range schema.Kinds {
		list, err := src.List(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s records: %w", kind, err)
		}
		recs[kind] = list
	}

	switch format {
	case FormatJSONL:
		bw := bufio.NewWriter(w)
		enc := json.NewEncoder(bw)
		for _, kind := range schema.Kinds {
			for _, rec := range recs[kind] {
				data, err := json.Marshal(rec)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal %s %s: %w", kind, rec.Metadata().ID, err)
				}
				if err := enc.Encode(line{Format: FormatVersion, Kind: kind, Data: data}); err != nil {
					return nil, fmt.Errorf("failed to write %s %s: %w", kind, rec.Metadata().ID, err)
				}
				result.add(kind)
			}
		}
		if err := bw.Flush(); err != nil {
			return nil, fmt.Errorf("failed to write bundle: %w", err)
		}

	case FormatYAML, FormatTOML:
		doc := document{
			Format:     FormatVersion,
			ExportedAt: time.Now().UTC().Format(time.RFC3339),
			Records:    make(map[string][]map[string]any),
		}
		for _, kind := range schema.Kinds {
			for _, rec := range recs[kind] {
				m, err := toGeneric(rec)
				if err != nil {
					return nil, fmt.Errorf("failed to convert %s %s: %w", kind, rec.Metadata().ID, err)
				}
				doc.Records[string(kind)] = append(doc.Records[string(kind)], m)
				result.add(kind)
			}
		}
		if err := encodeDocument(w, format, doc); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	return result, nil
}

func encodeDocument(w io.Writer, format Format, doc document) error {
	if format == FormatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode YAML bundle: %w", err)
		}
		return enc.Close()
	}
	if err := toml.NewEncoder(w).Encode(doc); err != nil {
		return fmt.Errorf("failed to encode TOML bundle: %w", err)
	}
	return nil
}

// ExportFile writes a bundle to path, replacing it atomically.
func ExportFile(ctx context.Context, src Source, path string) (*Result, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	result, err := Export(ctx, src, &buf, format)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0600); err != nil {
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return result, nil
}

// ImportOptions configures Import.
type ImportOptions struct {
	DryRun bool // Validate without writing
	Dirty  bool // Mark every imported record dirty so the next push sends it
}

// Import reads a bundle and stores its records in dst.
//
// Every record is decoded and validated before anything is written. If any
// record is invalid, nothing is stored and the returned Result lists every
// problem.
func Import(ctx context.Context, dst Sink, r io.Reader, format Format, opts ImportOptions) (*Result, error) {
	recs, err := decodeBundle(r, format)
	if err != nil {
		return nil, err
	}

	result := newResult()
	now := time.Now().UTC()
	for _, rec := range recs {
		meta := rec.Metadata()
		if meta.ID == "" {
			meta.ID = uuid.NewString()
		}
		meta.SetDefaults()
		if opts.Dirty {
			meta.Touch(now)
		}
		if err := rec.Validate(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s %s: %v", rec.Kind(), meta.ID, err))
		}
	}
	if len(result.Errors) > 0 {
		return result, fmt.Errorf("bundle has %d invalid records", len(result.Errors))
	}

	for _, rec := range recs {
		if !opts.DryRun {
			if err := dst.Put(ctx, rec); err != nil {
				return result, fmt.Errorf("failed to store %s %s: %w", rec.Kind(), rec.Metadata().ID, err)
			}
		}
		result.add(rec.Kind())
	}
	return result, nil
}

// ImportFile imports the bundle at path.
func ImportFile(ctx context.Context, dst Sink, path string, opts ImportOptions) (*Result, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	defer file.Close()
	return Import(ctx, dst, file, format, opts)
}

// decodeBundle returns the bundle's records in schema.Kinds order.
func decodeBundle(r io.Reader, format Format) ([]schema.Record, error) {
	byKind := make(map[schema.Kind][]schema.Record)

	switch format {
	case FormatJSONL:
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			text := bytes.TrimSpace(scanner.Bytes())
			if len(text) == 0 {
				continue
			}
			var l line
			if err := json.Unmarshal(text, &l); err != nil {
				return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
			}
			if err := checkVersion(l.Format); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			rec, err := decodeRecord(l.Kind, l.Data)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			byKind[l.Kind] = append(byKind[l.Kind], rec)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read bundle: %w", err)
		}

	case FormatYAML, FormatTOML:
		var doc document
		if format == FormatYAML {
			if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("invalid YAML bundle: %w", err)
			}
		} else {
			if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
				return nil, fmt.Errorf("invalid TOML bundle: %w", err)
			}
		}
		if err := checkVersion(doc.Format); err != nil {
			return nil, err
		}
		for name, entries := range doc.Records {
			kind := schema.Kind(name)
			for i, m := range entries {
				data, err := json.Marshal(m)
				if err != nil {
					return nil, fmt.Errorf("%s #%d: %w", kind, i+1, err)
				}
				rec, err := decodeRecord(kind, data)
				if err != nil {
					return nil, fmt.Errorf("%s #%d: %w", kind, i+1, err)
				}
				byKind[kind] = append(byKind[kind], rec)
			}
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	var out []schema.Record
	for _, kind := range schema.Kinds {
		out = append(out, byKind[kind]...)
	}
	return out, nil
}

func checkVersion(v string) error {
	if !strings.HasPrefix(v, "inkshelf/") {
		return fmt.Errorf("not an inkshelf bundle (format %q)", v)
	}
	return nil
}

func decodeRecord(kind schema.Kind, data []byte) (schema.Record, error) {
	rec, err := schema.New(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("invalid %s record: %w", kind, err)
	}
	return rec, nil
}

// toGeneric converts rec to a plain map using its JSON field names. Numbers
// become int64 or float64 so the YAML and TOML encoders write them natively.
func toGeneric(rec schema.Record) (map[string]any, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return normalize(m).(map[string]any), nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, inner := range t {
			if inner == nil {
				delete(t, k)
				continue
			}
			t[k] = normalize(inner)
		}
		return t
	case []any:
		for i := range t {
			t[i] = normalize(t[i])
		}
		return t
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	}
	return v
}
