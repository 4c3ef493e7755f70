package model

import "time"

// HTTPRequestRecord is a parsed HTTP request observed in-line on a forward.
// RecordedAt is stamped when the request finished parsing, for the log
// format's per-block timestamp line.
type HTTPRequestRecord struct {
	Method     string
	Path       string
	Version    string
	Headers    []HeaderField
	Body       []byte
	RecordedAt time.Time
}

// HTTPResponseRecord is a parsed HTTP response observed in-line on a
// forward. RecordedAt is stamped when the response finished parsing.
type HTTPResponseRecord struct {
	Status     int
	Reason     string
	Version    string
	Headers    []HeaderField
	Body       []byte
	RecordedAt time.Time
}

// HeaderField is one header key-value pair. Name is the canonical MIME form
// net/http's parser produces (e.g. "X-Request-Id"), not necessarily the
// original wire casing: http.ReadRequest/http.ReadResponse canonicalize
// header keys internally, and this package reuses that parser rather than
// hand-rolling header tokenization.
type HeaderField struct {
	Name  string
	Value string
}

// HTTPLogRecord pairs a request and its response, tagged for routing to the
// per-(config_id, local_port) log file.
type HTTPLogRecord struct {
	ConfigID  int64
	LocalPort int
	TraceID   string
	Request   HTTPRequestRecord
	Response  HTTPResponseRecord
}
