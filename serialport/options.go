package serialport

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// DefaultBaudRate is the rate the omnibase controller firmware runs at.
const DefaultBaudRate = 115200

// PortOptions describes the serial connection parameters used when opening a port.
type PortOptions struct {
	BaudRate int    `json:"baud_rate" yaml:"baudRate"`
	DataBits int    `json:"data_bits" yaml:"dataBits"`
	StopBits int    `json:"stop_bits" yaml:"stopBits"`
	Parity   string `json:"parity" yaml:"parity"`

	// ReadTimeout bounds a single line read. Zero blocks until a line arrives.
	ReadTimeout time.Duration `json:"read_timeout" yaml:"readTimeout"`
}

// Normalize validates the options and applies defaults for any unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, errors.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, errors.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	if opts.ReadTimeout < 0 {
		return opts, errors.Errorf("invalid read timeout %s: must not be negative", opts.ReadTimeout)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	switch parity {
	case "", "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, errors.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}

	opts.Parity = parity
	return opts, nil
}

// SerialMode converts the port options into the serial.Mode structure required by
// go.bug.st/serial when opening a port.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}

	return mode, nil
}
