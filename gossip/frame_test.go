package gossip

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeFrame(&buf, opPushPullView, []byte("hello")))

	op, payload, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, opPushPullView, op)
	assert.Equal(t, []byte("hello"), payload)
}

func TestWriteReadFrame_EmptyPayload(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeFrame(&buf, opAck, nil))

	op, payload, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, opAck, op)
	assert.Empty(t, payload)
}

func TestReadFrame_RejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer

	header := []byte{byte(opPushView), 0xff, 0xff, 0xff, 0xff}
	buf.Write(header)

	_, _, err := readFrame(&buf)
	assert.ErrorIs(t, err, errFrameTooLarge)
}
