// Package serialport owns the serial link to the motor controller: opening the device, reading
// one line at a time and writing whole frames.
package serialport

import (
	"bufio"
	"io"
	"sync"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

var (
	// ErrWriteFailed is returned when the port accepted fewer bytes than the frame holds.
	ErrWriteFailed = errors.New("failed to write full frame to serial port")
	// ErrReadTimeout is returned when no complete line arrived within the read timeout.
	ErrReadTimeout = errors.New("timed out reading from serial port")
	// ErrClosed is returned by operations on a closed connection.
	ErrClosed = errors.New("serial port closed")
)

// Porter is the minimal interface needed for a serial port. go.bug.st/serial ports satisfy
// it and tests substitute TestablePort.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// Conn is a line oriented connection to the controller. Frames are written atomically with
// respect to Close; reads are not locked so that Close can interrupt a blocked read.
type Conn struct {
	port   Porter
	reader *bufio.Reader

	mu     sync.Mutex
	closed bool
}

// Open opens the serial device at path.
func Open(path string, opts PortOptions) (*Conn, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %s", path)
	}

	if opts.ReadTimeout > 0 {
		if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
			port.Close()
			return nil, errors.Wrap(err, "failed to set read timeout")
		}
	}

	return NewConn(port), nil
}

// NewConn wraps an already open port.
func NewConn(port Porter) *Conn {
	return &Conn{
		port:   port,
		reader: bufio.NewReader(timeoutReader{port}),
	}
}

// ReadLine blocks until one full line (including its terminator) has been read.
func (c *Conn) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		if c.isClosed() {
			return line, ErrClosed
		}
		return line, err
	}
	return line, nil
}

// WriteFrame writes the frame in full or reports an error.
func (c *Conn) WriteFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	n, err := c.port.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return ErrWriteFailed
	}
	return nil
}

// Close closes the port. A frame being written finishes first.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.port.Close()
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// timeoutReader turns the (0, nil) result go.bug.st/serial returns on a read timeout into
// ErrReadTimeout, otherwise bufio would spin on empty reads.
type timeoutReader struct {
	r io.Reader
}

func (t timeoutReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n == 0 && err == nil && len(p) > 0 {
		return 0, ErrReadTimeout
	}
	return n, err
}
