package httpobserve

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kftray/kftray-core/internal/model"
)

func TestObserverWritesRequestResponsePair(t *testing.T) {
	dir := t.TempDir()
	obs := &Observer{ConfigID: 42, LocalPort: 8080, Dir: dir}

	var clientOut, remoteOut bytes.Buffer
	toRemote, toClient := obs.Observe(&clientOut, &remoteOut)

	request := "GET /health HTTP/1.1\r\nHost: example.com\r\nContent-Length: 0\r\n\r\n"
	_, err := toRemote.Write([]byte(request))
	require.NoError(t, err)

	response := "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"
	_, err = toClient.Write([]byte(response))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		data, _ := os.ReadFile(filepath.Join(dir, "42_8080.http"))
		return bytes.Contains(data, []byte("GET /health HTTP/1.1")) && bytes.Contains(data, []byte("200 OK"))
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, request, clientOut.String())
	assert.Equal(t, response, remoteOut.String())
}

func TestFormatRecordIncludesTimestampLineAfterStartLines(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	record := model.HTTPLogRecord{
		ConfigID:  1,
		LocalPort: 9090,
		Request: model.HTTPRequestRecord{
			Method:     "GET",
			Path:       "/health",
			Version:    "HTTP/1.1",
			RecordedAt: now,
		},
		Response: model.HTTPResponseRecord{
			Status:     200,
			Reason:     "200 OK",
			Version:    "HTTP/1.1",
			RecordedAt: now,
		},
	}

	text := formatRecord(record)
	ts := now.Format(time.RFC3339Nano)

	reqIdx := strings.Index(text, "GET /health HTTP/1.1")
	reqTsIdx := strings.Index(text, ts)
	require.NotEqual(t, -1, reqIdx)
	require.NotEqual(t, -1, reqTsIdx)
	assert.Greater(t, reqTsIdx, reqIdx)

	respIdx := strings.Index(text, "200 200 OK HTTP/1.1")
	respTsIdx := strings.LastIndex(text, ts)
	require.NotEqual(t, -1, respIdx)
	assert.Greater(t, respTsIdx, respIdx)
}

func TestLogWriterRotatesOnSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1_1.http")
	w := newLogWriter(path, 100)

	for i := 0; i < 10; i++ {
		w.Append(model.HTTPLogRecord{
			ConfigID:  1,
			LocalPort: 1,
			Request: model.HTTPRequestRecord{
				Method: "GET",
				Path:   fmt.Sprintf("/item/%d", i),
			},
			Response: model.HTTPResponseRecord{Status: 200, Body: bytes.Repeat([]byte("y"), 20)},
		})
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Greater(t, len(entries), 1, fmt.Sprintf("expected rotation to produce multiple files, got %v", entries))
}
