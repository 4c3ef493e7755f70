package udp

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeFrame(&buf, []byte("hello world")))
	require.NoError(t, writeFrame(&buf, []byte("second datagram")))

	first, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(first))

	second, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, "second datagram", string(second))

	_, err = readFrame(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	header[0] = 0xFF
	header[1] = 0xFF
	header[2] = 0xFF
	header[3] = 0xFF
	buf.Write(header[:])

	_, err := readFrame(&buf)
	assert.Error(t, err)
}
