package scr_nav

import (
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// SerialConfig describes the serial link to a motor controller board.
type SerialConfig struct {
	Port     string `json:"port" yaml:"port"`
	BaudRate int    `json:"baud_rate" yaml:"baud_rate"`
	DataBits int    `json:"data_bits" yaml:"data_bits"`
	StopBits int    `json:"stop_bits" yaml:"stop_bits"`
	Parity   string `json:"parity" yaml:"parity"`
}

// Normalize validates the options and applies defaults for any unset values.
func (c SerialConfig) Normalize() (SerialConfig, error) {
	out := c
	if out.BaudRate <= 0 {
		out.BaudRate = 115200
	}
	if out.DataBits == 0 {
		out.DataBits = 8
	}
	if out.DataBits < 5 || out.DataBits > 8 {
		return out, errors.Errorf("invalid data bits %d: must be between 5 and 8", out.DataBits)
	}
	if out.StopBits == 0 {
		out.StopBits = 1
	}
	if out.StopBits != 1 && out.StopBits != 2 {
		return out, errors.Errorf("invalid stop bits %d: supported values are 1 or 2", out.StopBits)
	}

	switch strings.ToUpper(strings.TrimSpace(out.Parity)) {
	case "", "N", "NONE":
		out.Parity = "N"
	case "E", "EVEN":
		out.Parity = "E"
	case "O", "ODD":
		out.Parity = "O"
	default:
		return out, errors.Errorf("unsupported parity %q: expected N, E, or O", c.Parity)
	}
	return out, nil
}

// SerialMode converts the options into the mode required by go.bug.st/serial.
func (c SerialConfig) SerialMode() (*serial.Mode, error) {
	opts, err := c.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{BaudRate: opts.BaudRate, DataBits: opts.DataBits}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	} else {
		mode.StopBits = serial.OneStopBit
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// SerialSender writes newline-terminated "linear,angular" lines to a serial port.
type SerialSender struct {
	mu   sync.Mutex
	port io.WriteCloser
}

// NewSerialSender opens the configured serial port.
func NewSerialSender(cfg SerialConfig) (*SerialSender, error) {
	mode, err := cfg.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "open serial port %q", cfg.Port)
	}
	return NewSerialSenderFromPort(port), nil
}

// NewSerialSenderFromPort wraps an already open port.
func NewSerialSenderFromPort(port io.WriteCloser) *SerialSender {
	return &SerialSender{port: port}
}

// Send writes one command line.
func (s *SerialSender) Send(cmd VelocityCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return errors.New("serial port closed")
	}
	_, err := io.WriteString(s.port, formatCommand(cmd)+"\n")
	return err
}

// Close closes the port. Further sends fail.
func (s *SerialSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
