// Package transport provides the TCP listener and the newline-delimited
// line protocol used by chat clients.
package transport

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// Conn wraps a TCP connection with newline-delimited UTF-8 line framing.
// Reads block without a deadline; writes are serialized and carry an
// optional deadline. Safe for concurrent writers (broadcasters share a
// session's Conn with the session's own goroutine).
type Conn struct {
	raw    net.Conn
	reader *bufio.Reader
	mu     sync.Mutex

	writeTimeout time.Duration
}

// NewConn wraps a raw TCP connection for line-based I/O.
// TCP_NODELAY is enabled when the connection supports it.
//
// Precondition: raw must be a valid, open network connection.
// Postcondition: Returns a Conn ready for reading and writing.
func NewConn(raw net.Conn, writeTimeout time.Duration) *Conn {
	if tcp, ok := raw.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return &Conn{
		raw:          raw,
		reader:       bufio.NewReaderSize(raw, 4096),
		writeTimeout: writeTimeout,
	}
}

// ReadLine reads a single line of input. The returned line has trailing
// \r\n stripped and surrounding whitespace trimmed.
//
// Postcondition: Returns the next line of text input, or an error (including io.EOF).
func (c *Conn) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// WriteLine sends a line of text followed by \n to the client.
//
// Precondition: text should not contain a trailing newline.
// Postcondition: text + \n is written to the connection.
func (c *Conn) WriteLine(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	_, err := fmt.Fprintf(c.raw, "%s\n", text)
	return err
}

// Close closes the underlying TCP connection.
//
// Postcondition: The connection is closed and no longer usable.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}
