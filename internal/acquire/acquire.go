// Package acquire implements the frame acquirer: a single-client TCP
// source of soft-symbol bytes, with a stall timeout.
//
// This is plain net.Listener/net.Conn rather than a framed transport
// library: a raw single-client byte-oriented stream with a
// decoder-specific stall deadline doesn't fit the multi-client,
// message-framed model that gorilla/websocket, paho/mqtt, or grpc
// impose.
package acquire

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/charmbracelet/log"
)

// ErrSourceStalled is returned when fewer than the requested bytes
// arrive within the stall timeout.
var ErrSourceStalled = errors.New("acquire: source stalled")

// ErrSourceClosed is returned when the source disconnects mid-read.
var ErrSourceClosed = errors.New("acquire: source closed")

// Source is the Frame Acquirer's external collaborator: anything that
// can fill a buffer with exactly len(buf) bytes, or fail.
type Source interface {
	AcquireInto(buf []byte) error
	Close() error
}

// TCPSource accepts exactly one client connection and reads from it.
type TCPSource struct {
	listener net.Listener
	conn     net.Conn
	timeout  time.Duration
}

// Listen opens the listener but does not block for a client.
func Listen(addr string, timeout time.Duration) (*TCPSource, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &TCPSource{listener: l, timeout: timeout}, nil
}

// Accept blocks for the single client this decoder instance will serve.
// This decoder does not fan out to multiple clients on either side of
// the pipeline, so only one connection is ever accepted.
func (s *TCPSource) Accept() error {
	conn, err := s.listener.Accept()
	if err != nil {
		return err
	}
	log.Infof("acquire: client connected from %s", conn.RemoteAddr())
	s.conn = conn
	return nil
}

// Addr reports the listener's bound address, useful for the `probe`
// command and for tests that bind to ":0".
func (s *TCPSource) Addr() net.Addr {
	return s.listener.Addr()
}

// AcquireInto reads exactly len(buf) bytes within the configured stall
// timeout: a short read caused by peer EOF is SourceClosed, a read that
// exceeds the deadline is SourceStalled.
func (s *TCPSource) AcquireInto(buf []byte) error {
	if s.conn == nil {
		return ErrSourceClosed
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		return err
	}
	_, err := io.ReadFull(s.conn, buf)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ErrSourceClosed
	default:
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return ErrSourceStalled
		}
		return err
	}
}

// Close tears down both the client connection and the listener.
func (s *TCPSource) Close() error {
	if s.conn != nil {
		_ = s.conn.Close()
	}
	return s.listener.Close()
}
