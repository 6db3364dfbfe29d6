package acquire

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_TCPSource_acquiresExactBytes(t *testing.T) {
	src, err := Listen("127.0.0.1:0", time.Second)
	require.NoError(t, err)
	defer src.Close()

	done := make(chan error, 1)
	go func() { done <- src.Accept() }()

	conn, err := net.Dial("tcp", src.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, <-done)

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	go conn.Write(payload)

	buf := make([]byte, len(payload))
	require.NoError(t, src.AcquireInto(buf))
	assert.Equal(t, payload, buf)
}

func Test_TCPSource_stallsOnSlowWriter(t *testing.T) {
	src, err := Listen("127.0.0.1:0", 50*time.Millisecond)
	require.NoError(t, err)
	defer src.Close()

	done := make(chan error, 1)
	go func() { done <- src.Accept() }()

	conn, err := net.Dial("tcp", src.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, <-done)

	buf := make([]byte, 16)
	err = src.AcquireInto(buf)
	assert.ErrorIs(t, err, ErrSourceStalled)
}

func Test_TCPSource_closedByPeer(t *testing.T) {
	src, err := Listen("127.0.0.1:0", time.Second)
	require.NoError(t, err)
	defer src.Close()

	done := make(chan error, 1)
	go func() { done <- src.Accept() }()

	conn, err := net.Dial("tcp", src.Addr().String())
	require.NoError(t, err)
	require.NoError(t, <-done)
	conn.Close()

	buf := make([]byte, 16)
	err = src.AcquireInto(buf)
	assert.ErrorIs(t, err, ErrSourceClosed)
}

func Test_TCPSource_acquireBeforeAccept(t *testing.T) {
	src, err := Listen("127.0.0.1:0", time.Second)
	require.NoError(t, err)
	defer src.Close()

	buf := make([]byte, 4)
	err = src.AcquireInto(buf)
	assert.ErrorIs(t, err, ErrSourceClosed)
}
