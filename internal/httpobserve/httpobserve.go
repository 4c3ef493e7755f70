// Package httpobserve implements the HTTP Observer (spec §4.5): a
// non-mutating tap on a forwarded connection's byte streams that
// reconstructs HTTP request/response pairs and appends them to a per-config
// log file, rotating by size. It never alters bytes in flight — it only
// copies, matching the teacher's plain io.Copy relay in lib/gui.go and the
// structured, component-tagged logging convention from internal/logging.
package httpobserve

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kftray/kftray-core/internal/logging"
	"github.com/kftray/kftray-core/internal/model"
)

// DefaultRotateBytes is the default per-file size cap before rotation
// (spec §4.5, default 10 MiB).
const DefaultRotateBytes int64 = 10 * 1024 * 1024

// connState tracks one tapped connection's progress through
// awaiting_request -> reading_body -> awaiting_response -> done.
type connState int

const (
	stateAwaitingRequest connState = iota
	stateReadingBody
	stateAwaitingResponse
	stateDone
)

// Observer taps one direction each of many connections for a single
// (config_id, local_port) pair, writing parsed request/response records to
// one rotating log file.
type Observer struct {
	ConfigID    int64
	LocalPort   int
	Dir         string
	RotateBytes int64

	writer *logWriter
	once   sync.Once
}

// Observe satisfies the forward package's ConnObserver interface. It tees
// each direction into a pipe fed to an HTTP parser goroutine, and returns
// writers that still carry the original bytes onward unchanged.
func (o *Observer) Observe(clientToRemote, remoteToClient io.Writer) (io.Writer, io.Writer) {
	o.once.Do(func() {
		o.writer = newLogWriter(o.logPath(), o.rotateBytes())
	})

	reqReader, reqPipeWriter := io.Pipe()
	respReader, respPipeWriter := io.Pipe()

	session := &pairSession{writer: o.writer, configID: o.ConfigID, localPort: o.LocalPort}

	go session.parseRequests(reqReader)
	go session.parseResponses(respReader)

	tapClientToRemote := io.MultiWriter(clientToRemote, reqPipeWriter)
	tapRemoteToClient := io.MultiWriter(remoteToClient, respPipeWriter)

	return tapClientToRemote, tapRemoteToClient
}

func (o *Observer) logPath() string {
	return filepath.Join(o.Dir, fmt.Sprintf("%d_%d.http", o.ConfigID, o.LocalPort))
}

func (o *Observer) rotateBytes() int64 {
	if o.RotateBytes > 0 {
		return o.RotateBytes
	}
	return DefaultRotateBytes
}

// pairSession reconstructs the request/response pairs for one connection's
// two tapped directions. Parser errors never fail the forward (spec §4.5 /
// §7): they stop observation for that connection and log a diagnostic.
type pairSession struct {
	writer    *logWriter
	configID  int64
	localPort int

	mu      sync.Mutex
	pending []model.HTTPRequestRecord
	state   connState
}

func (s *pairSession) setState(st connState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *pairSession) parseRequests(r io.Reader) {
	defer drain(r)
	defer s.setState(stateDone)

	br := bufio.NewReader(r)
	for {
		s.setState(stateAwaitingRequest)
		req, err := http.ReadRequest(br)
		if err != nil {
			if err != io.EOF {
				logging.Warn("http observer request parse stopped", "error", err)
			}
			return
		}

		s.setState(stateReadingBody)
		body, _ := readBody(req.Body, req.Header)
		record := model.HTTPRequestRecord{
			Method:     req.Method,
			Path:       req.URL.RequestURI(),
			Version:    req.Proto,
			Headers:    headerFields(req.Header),
			Body:       body,
			RecordedAt: time.Now(),
		}

		s.mu.Lock()
		s.pending = append(s.pending, record)
		s.mu.Unlock()
	}
}

func (s *pairSession) parseResponses(r io.Reader) {
	defer drain(r)

	br := bufio.NewReader(r)
	for {
		s.setState(stateAwaitingResponse)
		resp, err := http.ReadResponse(br, nil)
		if err != nil {
			if err != io.EOF {
				logging.Warn("http observer response parse stopped", "error", err)
			}
			return
		}

		body, _ := readBody(resp.Body, resp.Header)
		respRecord := model.HTTPResponseRecord{
			Status:     resp.StatusCode,
			Reason:     resp.Status,
			Version:    resp.Proto,
			Headers:    headerFields(resp.Header),
			Body:       body,
			RecordedAt: time.Now(),
		}

		s.mu.Lock()
		var reqRecord model.HTTPRequestRecord
		if len(s.pending) > 0 {
			reqRecord = s.pending[0]
			s.pending = s.pending[1:]
		}
		s.mu.Unlock()

		s.writer.Append(model.HTTPLogRecord{
			ConfigID:  s.configID,
			LocalPort: s.localPort,
			Request:   reqRecord,
			Response:  respRecord,
		})
	}
}

// readBody reads and decompresses a body per the content-encoding header
// (chunked transfer-encoding is already unwrapped by http.ReadRequest /
// http.ReadResponse; gzip content-encoding is decompressed here), per
// spec §4.5. The raw decompressed bytes are returned; rendering as text or
// a hex summary happens at log-formatting time.
func readBody(body io.ReadCloser, header http.Header) ([]byte, error) {
	defer body.Close()

	var reader io.Reader = body
	if header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}

	raw, err := io.ReadAll(reader)
	if err != nil && len(raw) == 0 {
		return nil, err
	}
	return raw, nil
}

// renderBody formats body as UTF-8 text if valid, or a length+hex summary
// otherwise (spec §4.5).
func renderBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if utf8.Valid(body) {
		return string(body)
	}
	return fmt.Sprintf("<binary %d bytes: %x>", len(body), body)
}

// headerFields flattens an http.Header into the log record's ordered pairs.
// Keys come back in net/http's canonical MIME form (textproto.
// CanonicalMIMEHeaderKey), not the original wire casing: http.ReadRequest
// and http.ReadResponse canonicalize while parsing, and this package relies
// on their parsing rather than hand-tokenizing header lines.
func headerFields(h http.Header) []model.HeaderField {
	fields := make([]model.HeaderField, 0, len(h))
	for name, values := range h {
		for _, v := range values {
			fields = append(fields, model.HeaderField{Name: name, Value: v})
		}
	}
	return fields
}

func drain(r io.Reader) {
	io.Copy(io.Discard, r) //nolint:errcheck
}

// logWriter is the single writer task per (config_id, local_port), per
// spec §5's one-writer-per-log-file rule. Rotation renames the current file
// with a timestamp suffix once it exceeds rotateBytes.
type logWriter struct {
	mu          sync.Mutex
	path        string
	rotateBytes int64
	file        *os.File
	written     int64
}

func newLogWriter(path string, rotateBytes int64) *logWriter {
	return &logWriter{path: path, rotateBytes: rotateBytes}
}

func (w *logWriter) Append(record model.HTTPLogRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureOpen(); err != nil {
		logging.Warn("http observer could not open log file", "path", w.path, "error", err)
		return
	}

	text := formatRecord(record)
	n, err := w.file.WriteString(text)
	if err != nil {
		logging.Warn("http observer write failed", "path", w.path, "error", err)
		return
	}
	w.written += int64(n)

	if w.written >= w.rotateBytes {
		w.rotate()
	}
}

func (w *logWriter) ensureOpen() error {
	if w.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err == nil {
		w.written = info.Size()
	}
	w.file = f
	return nil
}

func (w *logWriter) rotate() {
	if w.file == nil {
		return
	}
	w.file.Close()
	w.file = nil

	rotated := fmt.Sprintf("%s.%d", w.path, time.Now().UnixNano())
	os.Rename(w.path, rotated) //nolint:errcheck
	w.written = 0
}

// formatRecord renders one HTTPLogRecord in the append-only text layout
// from spec §6: a separator line, then for each of Request/Response a start
// line, a <timestamp> line, Headers, and Body.
func formatRecord(r model.HTTPLogRecord) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "--- config=%d port=%d ---\n", r.ConfigID, r.LocalPort)
	fmt.Fprintf(&buf, "Request:\n%s %s %s\n", r.Request.Method, r.Request.Path, r.Request.Version)
	fmt.Fprintf(&buf, "%s\n", formatTimestamp(r.Request.RecordedAt))
	buf.WriteString("Headers:\n")
	for _, h := range r.Request.Headers {
		fmt.Fprintf(&buf, "%s: %s\n", h.Name, h.Value)
	}
	buf.WriteString("Body:\n")
	buf.WriteString(renderBody(r.Request.Body))
	buf.WriteString("\n")

	fmt.Fprintf(&buf, "Response:\n%d %s %s\n", r.Response.Status, r.Response.Reason, r.Response.Version)
	fmt.Fprintf(&buf, "%s\n", formatTimestamp(r.Response.RecordedAt))
	buf.WriteString("Headers:\n")
	for _, h := range r.Response.Headers {
		fmt.Fprintf(&buf, "%s: %s\n", h.Name, h.Value)
	}
	buf.WriteString("Body:\n")
	buf.WriteString(renderBody(r.Response.Body))
	buf.WriteString("\n\n")

	return buf.String()
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}
