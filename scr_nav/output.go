package scr_nav

import (
	"fmt"
	"net"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// CommandSink accepts velocity commands for the actuators.
type CommandSink interface {
	Send(cmd VelocityCommand) error
	Close() error
}

// formatCommand renders "linear,angular" as sent by the UDP and serial sinks.
func formatCommand(cmd VelocityCommand) string {
	return fmt.Sprintf("%.4f,%.4f", cmd.Linear, cmd.Angular)
}

// OutputSender sends controller commands over UDP as CSV.
type OutputSender struct {
	conn *net.UDPConn
}

// NewOutputSender creates a UDP sender for the given address.
// An empty address yields a sender that drops everything.
func NewOutputSender(addr string) (*OutputSender, error) {
	if addr == "" {
		return &OutputSender{}, nil
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve output addr %q", addr)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial output addr %q", addr)
	}
	return &OutputSender{conn: conn}, nil
}

// Close releases the UDP socket.
func (s *OutputSender) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Send writes "linear,angular" as a CSV payload.
func (s *OutputSender) Send(cmd VelocityCommand) error {
	if s == nil || s.conn == nil {
		return nil
	}
	_, err := s.conn.Write([]byte(formatCommand(cmd)))
	return err
}

// MultiSink fans every command out to all of its sinks.
type MultiSink []CommandSink

// Send delivers cmd to every sink and combines their errors.
func (m MultiSink) Send(cmd VelocityCommand) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Send(cmd))
	}
	return err
}

// Close closes every sink and combines their errors.
func (m MultiSink) Close() error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Close())
	}
	return err
}
