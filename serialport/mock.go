package serialport

import (
	"bytes"
	"sync"

	"github.com/pkg/errors"
)

// TestablePort implements Porter with configurable behaviour for tests: scripted input,
// captured output, injected errors and reads that block until data arrives.
type TestablePort struct {
	mu sync.Mutex

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer

	// ReadError is returned by the next Read once buffered data is exhausted.
	ReadError error
	// WriteError is returned by the next Write call if set.
	WriteError error
	// ShortWrite makes the next Write accept one byte less than offered.
	ShortWrite bool
	// BlockReads makes Read wait for AddReadData or Close when no data is buffered.
	BlockReads bool

	closed     bool
	writeCalls int
	readCond   *sync.Cond
}

// NewTestablePort creates a port with empty buffers.
func NewTestablePort() *TestablePort {
	p := &TestablePort{}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

// Read returns buffered data. With no data it returns ReadError, blocks if BlockReads is set,
// or reports a timeout the way go.bug.st/serial does: zero bytes and no error.
func (p *TestablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.BlockReads && !p.closed && p.readBuf.Len() == 0 && p.ReadError == nil {
		p.readCond.Wait()
	}
	if p.closed {
		return 0, errors.New("port closed")
	}
	if p.readBuf.Len() > 0 {
		return p.readBuf.Read(b)
	}
	if p.ReadError != nil {
		err := p.ReadError
		p.ReadError = nil
		return 0, err
	}
	return 0, nil
}

// Write records the data, optionally failing or accepting a short count.
func (p *TestablePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.writeCalls++
	if p.closed {
		return 0, errors.New("port closed")
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}
	if p.ShortWrite && len(b) > 0 {
		p.ShortWrite = false
		return p.writeBuf.Write(b[:len(b)-1])
	}
	return p.writeBuf.Write(b)
}

// Close marks the port closed and wakes blocked readers.
func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	p.readCond.Broadcast()
	return nil
}

// AddReadData queues data for subsequent Read calls.
func (p *TestablePort) AddReadData(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.readBuf.WriteString(data)
	p.readCond.Broadcast()
}

// FailReads makes the next Read that finds no buffered data return err.
func (p *TestablePort) FailReads(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadError = err
	p.readCond.Broadcast()
}

// Written returns everything written to the port so far.
func (p *TestablePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeBuf.String()
}

// WriteCalls returns the number of Write calls.
func (p *TestablePort) WriteCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeCalls
}

// Closed reports whether Close was called.
func (p *TestablePort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
