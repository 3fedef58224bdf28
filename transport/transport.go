// Package transport implements TCPTransport, a reference transport adapter
// for delivering sealed Trust Spanning Protocol envelopes over a plain TCP
// connection. The wallet package treats transport as wholly pluggable — an
// (endpoint URL, bytes) pair in and out — so this package is one concrete
// choice among many a caller could supply, adapted from the
// connection-lifecycle and deadline-handling idiom of link.Link.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"
)

// MaxMessageSize bounds a single length-prefixed message, guarding a peer
// from claiming an unbounded length and exhausting memory.
const MaxMessageSize = 16 << 20 // 16 MiB

// DialTimeout is how long Send waits to establish a new connection to a
// peer it has not talked to yet.
const DialTimeout = 30 * time.Second

// TCPTransport delivers length-prefixed TSP envelopes over net.Conn,
// registered for the "tsp" and "tcp" URL schemes. Connections are cached
// per peer address and reused across sends, mirroring link.Link's
// one-connection-per-relay model; a connection that errors is dropped from
// the cache so the next Send redials.
type TCPTransport struct {
	logger *slog.Logger

	mu    sync.Mutex
	conns map[string]*peerConn
}

// peerConn pairs a cached connection with the lock that serializes writes to
// it — two concurrent Sends to the same peer (e.g. an auto-bootstrapped
// relationship request racing the payload that triggered it) must not
// interleave their framed messages on the wire.
type peerConn struct {
	mu   sync.Mutex
	conn net.Conn
}

// New returns a TCPTransport. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *TCPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &TCPTransport{logger: logger, conns: make(map[string]*peerConn)}
}

// Send delivers message to the peer named by endpoint, a "tsp://" or
// "tcp://" URL whose host:port names the listener to dial. TLS, QUIC, and
// HTTPS schemes are rejected outright rather than silently downgraded —
// this adapter carries no transport-layer confidentiality of its own
// (that's the envelope's job); a scheme implying one would be a lie.
func (t *TCPTransport) Send(endpoint string, message []byte) error {
	addr, err := t.dialAddr(endpoint)
	if err != nil {
		return err
	}
	if len(message) > MaxMessageSize {
		return fmt.Errorf("transport: message of %d bytes exceeds MaxMessageSize", len(message))
	}

	pc, err := t.connFor(addr)
	if err != nil {
		return err
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := pc.conn.SetWriteDeadline(time.Now().Add(DialTimeout)); err != nil {
		t.drop(addr)
		return fmt.Errorf("transport: set write deadline to %s: %w", addr, err)
	}
	if err := writeFramed(pc.conn, message); err != nil {
		t.drop(addr)
		return fmt.Errorf("transport: send to %s: %w", addr, err)
	}
	return nil
}

// Listen starts accepting connections on addr ("host:port"), calling handle
// with each decoded message as it arrives. Listen returns as soon as the
// listener is open; connections are accepted in a background goroutine
// until the caller closes the returned net.Listener.
func (t *TCPTransport) Listen(addr string, handle func(message []byte)) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen on %s: %w", addr, err)
	}
	go t.acceptLoop(ln, handle)
	return ln, nil
}

func (t *TCPTransport) acceptLoop(ln net.Listener, handle func(message []byte)) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			t.logger.Debug("listener closed", "addr", ln.Addr(), "err", err)
			return
		}
		go t.serve(conn, handle)
	}
}

func (t *TCPTransport) serve(conn net.Conn, handle func(message []byte)) {
	defer conn.Close()
	for {
		message, err := readFramed(conn)
		if err != nil {
			if err != io.EOF {
				t.logger.Debug("read failed", "remote", conn.RemoteAddr(), "err", err)
			}
			return
		}
		handle(message)
	}
}

// Close closes every cached outbound connection.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for addr, pc := range t.conns {
		if err := pc.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(t.conns, addr)
	}
	return firstErr
}

func (t *TCPTransport) dialAddr(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("transport: parse endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "tsp", "tcp":
	case "tls", "quic", "https":
		return "", fmt.Errorf("transport: scheme %q requires transport-layer encryption this adapter does not provide", u.Scheme)
	default:
		return "", fmt.Errorf("transport: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("transport: endpoint %q has no host", endpoint)
	}
	return u.Host, nil
}

func (t *TCPTransport) connFor(addr string) (*peerConn, error) {
	t.mu.Lock()
	pc, ok := t.conns[addr]
	t.mu.Unlock()
	if ok {
		return pc, nil
	}

	t.logger.Debug("dialing", "addr", addr)
	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	pc = &peerConn{conn: conn}

	t.mu.Lock()
	t.conns[addr] = pc
	t.mu.Unlock()
	return pc, nil
}

func (t *TCPTransport) drop(addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pc, ok := t.conns[addr]; ok {
		pc.conn.Close()
		delete(t.conns, addr)
	}
}

// writeFramed writes a 4-byte big-endian length prefix followed by message.
func writeFramed(w io.Writer, message []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(message)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// readFramed reads one length-prefixed message.
func readFramed(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxMessageSize {
		return nil, fmt.Errorf("transport: declared message length %d exceeds MaxMessageSize", n)
	}
	message := make([]byte, n)
	if _, err := io.ReadFull(r, message); err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	return message, nil
}
