// Package sink writes dataset results to files and message subjects.
package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/ChiaYuChang/lorekeeper/internal/metrics"
	"github.com/ChiaYuChang/lorekeeper/internal/workers/publishers"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"go.opentelemetry.io/otel/attribute"
)

// RecordSubject prefixes every published dataset subject.
const RecordSubject = "lorekeeper.records"

// Destination names where a dataset result goes.
type Destination struct {
	Game    string `json:"game"`
	Dataset string `json:"dataset"`
	Dir     string `json:"dir"`
	File    string `json:"file"`
}

// Path returns Dir/File.
func (d Destination) Path() string {
	return filepath.Join(d.Dir, d.File)
}

// Subject returns the NATS subject of d. Dots and spaces in names are
// replaced since they are token separators.
func (d Destination) Subject() string {
	clean := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	return RecordSubject + "." + clean.Replace(d.Game) + "." + clean.Replace(d.Dataset)
}

type Sink interface {
	Write(ctx context.Context, dst Destination, value any) error
}

// Marshal encodes v with a four-space indent, leaving HTML characters and
// non-ASCII text unescaped.
func Marshal(v any) ([]byte, error) {
	data, err := encode(v, "    ")
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(data, "\n"), nil
}

func encode(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return unescapeHTML(buf.Bytes()), nil
}

// unescapeHTML reverts the \u003c, \u003e and \u0026 escapes that custom
// marshalers emit regardless of the encoder settings.
func unescapeHTML(b []byte) []byte {
	if !bytes.Contains(b, []byte(`\u00`)) {
		return b
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' {
			out = append(out, b[i])
			continue
		}
		if i+5 < len(b) && b[i+1] == 'u' && b[i+2] == '0' && b[i+3] == '0' {
			if r, ok := htmlEscapes[string(b[i+4:i+6])]; ok {
				out = append(out, r)
				i += 5
				continue
			}
		}
		out = append(out, b[i])
		if i+1 < len(b) {
			i++
			out = append(out, b[i])
		}
	}
	return out
}

var htmlEscapes = map[string]byte{"3c": '<', "3e": '>', "26": '&'}

// FileSink writes <root>/<dir>/<file>.
type FileSink struct {
	root string
}

func NewFileSink(root string) *FileSink {
	return &FileSink{root: root}
}

func (s *FileSink) Write(_ context.Context, dst Destination, value any) error {
	path := filepath.Join(s.root, dst.Path())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ec.ErrIOError.Clone().WithDetails("failed to create " + filepath.Dir(path)).Warp(err)
	}

	data, err := Marshal(value)
	if err != nil {
		return ec.ErrMarshalFailed.Clone().WithDetails(dst.Path()).Warp(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ec.ErrIOError.Clone().WithDetails("failed to write " + path).Warp(err)
	}

	metrics.RecordsWritten.WithLabelValues("file", dst.Dataset).Inc()
	global.Logger.Info().
		Str("path", path).
		Int("bytes", len(data)).
		Msg("dataset written")
	return nil
}

// JSONLWriter writes one JSON document per line.
type JSONLWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
	c  io.Closer
}

func NewJSONLWriter(w io.Writer) *JSONLWriter {
	jw := &JSONLWriter{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		jw.c = c
	}
	return jw
}

// CreateJSONL creates path and its parent directories.
func CreateJSONL(path string) (*JSONLWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, ec.ErrIOError.Clone().WithDetails("failed to create " + filepath.Dir(path)).Warp(err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, ec.ErrIOError.Clone().WithDetails("failed to create " + path).Warp(err)
	}
	return NewJSONLWriter(f), nil
}

func (w *JSONLWriter) Encode(v any) error {
	data, err := encode(v, "")
	if err != nil {
		return ec.ErrMarshalFailed.Clone().Warp(err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(data); err != nil {
		return ec.ErrIOError.Clone().Warp(err)
	}
	return nil
}

// Close flushes buffered lines and closes the underlying writer when it is
// an io.Closer.
func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.w.Flush()
	if w.c != nil {
		err = errors.Join(err, w.c.Close())
	}
	return err
}

// NATSSink publishes each dataset result on Destination.Subject.
type NATSSink struct {
	pub publishers.Publisher
}

func NewNATSSink(pub publishers.Publisher) *NATSSink {
	return &NATSSink{pub: pub}
}

// Record is the payload published by NATSSink.
type Record struct {
	Destination
	Value any `json:"value"`
}

func (s *NATSSink) Write(ctx context.Context, dst Destination, value any) error {
	err := s.pub.PublishNATSMessage(ctx, dst.Subject(), Record{Destination: dst, Value: value},
		attribute.String("game", dst.Game),
		attribute.String("dataset", dst.Dataset))
	if err != nil {
		return err
	}
	metrics.RecordsWritten.WithLabelValues("nats", dst.Dataset).Inc()
	return nil
}

type multi []Sink

// Multi writes to every sink and joins their errors.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Write(ctx context.Context, dst Destination, value any) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, dst, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
