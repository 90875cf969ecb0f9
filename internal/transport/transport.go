// Package transport defines the wire-level contract this core depends
// on but does not implement (framing, security-policy encryption, the
// OPC UA binary codec are all out of scope), plus a loopback test
// double used by integration tests to exercise the channel/session/
// dispatch chain without a real socket.
package transport

import (
	"io"
	"net"
	"sync"

	"github.com/djherbis/buffer"
)

// Frame is one decoded application-layer message handed up from the
// wire. What it decodes to (hello, open-channel, service request) is a
// concern of the codec this package does not implement.
type Frame struct {
	Payload []byte
}

// Listener accepts inbound connections carrying Frames. A real
// implementation would speak the OPC UA TCP binary protocol; this
// package only declares the shape consumers need.
type Listener interface {
	Accept() (Conn, error)
	Close() error
	Addr() net.Addr
}

// Conn is a single connection's read/write/close surface, matching
// channel.Connection plus framed I/O.
type Conn interface {
	io.Closer
	RemoteAddr() string
	ReadFrame() (Frame, error)
	WriteFrame(Frame) error
}

// blockingBuffer adapts a github.com/djherbis/buffer.Buffer (a plain
// io.Reader/io.Writer over ring-buffered storage) into a blocking pipe:
// Read waits for data rather than returning 0, io.EOF the way a bare
// buffer.Buffer would.
type blockingBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    buffer.Buffer
	closed bool
}

func newBlockingBuffer(size int64) *blockingBuffer {
	b := &blockingBuffer{buf: buffer.New(size)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *blockingBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, io.ErrClosedPipe
	}
	n, err := b.buf.Write(p)
	b.cond.Broadcast()
	return n, err
}

func (b *blockingBuffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.buf.Len() == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.buf.Len() == 0 && b.closed {
		return 0, io.EOF
	}
	return b.buf.Read(p)
}

func (b *blockingBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
	return nil
}

// LoopbackTransport is an in-process Conn implementation backed by two
// github.com/djherbis/buffer ring buffers, one per direction, so tests
// can push frames in one end and read them from the other without
// touching the network.
type LoopbackTransport struct {
	out    *blockingBuffer
	in     *blockingBuffer
	remote string
}

// NewLoopbackPair builds two ends of a LoopbackTransport: writes on one
// side's WriteFrame become reads on the other's ReadFrame.
func NewLoopbackPair(bufSize int64) (client *LoopbackTransport, server *LoopbackTransport) {
	clientToServer := newBlockingBuffer(bufSize)
	serverToClient := newBlockingBuffer(bufSize)

	client = &LoopbackTransport{out: clientToServer, in: serverToClient, remote: "loopback-server"}
	server = &LoopbackTransport{out: serverToClient, in: clientToServer, remote: "loopback-client"}
	return client, server
}

// RemoteAddr satisfies channel.Connection.
func (t *LoopbackTransport) RemoteAddr() string { return t.remote }

// WriteFrame frames payload with a 4-byte big-endian length prefix.
func (t *LoopbackTransport) WriteFrame(f Frame) error {
	length := len(f.Payload)
	header := []byte{byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length)}
	if _, err := t.out.Write(header); err != nil {
		return err
	}
	_, err := t.out.Write(f.Payload)
	return err
}

// ReadFrame blocks until a full frame is available.
func (t *LoopbackTransport) ReadFrame() (Frame, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(t.in, header); err != nil {
		return Frame{}, err
	}
	length := int(header[0])<<24 | int(header[1])<<16 | int(header[2])<<8 | int(header[3])
	payload := make([]byte, length)
	if _, err := io.ReadFull(t.in, payload); err != nil {
		return Frame{}, err
	}
	return Frame{Payload: payload}, nil
}

// Close closes this endpoint's outbound buffer, unblocking any pending
// read on the peer.
func (t *LoopbackTransport) Close() error {
	return t.out.Close()
}
