package instrument

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeberg.org/voltaic/psuctl/internal/errors"
)

const (
	dialTimeout = 5 * time.Second
	ioTimeout   = 5 * time.Second

	// Single-channel bench supplies expose their one output as CH1.
	channel = "CH1"
)

// scpiDevice speaks newline-terminated SCPI over a TCP socket, the LXI-style
// surface most bench supplies expose on port 5025.
type scpiDevice struct {
	mu       sync.Mutex
	conn     net.Conn
	r        *bufio.Reader
	identity string
	closed   bool
}

// Dial connects to a supply at address (host:port) and confirms it is alive
// with an identification query.
func Dial(ctx context.Context, address string) (Device, error) {
	errFactory := errors.New()

	dialer := net.Dialer{Timeout: dialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrConnection, err).WithData(address)
	}

	dev := &scpiDevice{
		conn: conn,
		r:    bufio.NewReader(conn),
	}

	identity, err := dev.query(ctx, "*IDN?")
	if err != nil {
		conn.Close()

		return nil, errFactory.Wrap(errors.ErrConnection, err).WithData(address)
	}
	dev.identity = identity

	return dev, nil
}

func (d *scpiDevice) Configure(ctx context.Context, s Settings) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	errFactory := errors.New()
	if d.closed {
		return errFactory.WithMessage(errors.ErrConnection, "device is closed")
	}

	cmds := make([]string, 0, 4)
	if s.ConstantCurrent {
		cmds = append(cmds,
			":VOLT:PROT "+scpiFloat(s.OverVoltageLimit),
			":OUTP:OVP ON",
		)
	} else {
		cmds = append(cmds, ":OUTP:OVP OFF")
	}
	cmds = append(cmds,
		fmt.Sprintf(":APPL %s,%s,%s", channel, scpiFloat(s.Voltage), scpiFloat(s.Current)),
		fmt.Sprintf(":OUTP %s,ON", channel),
	)

	for _, cmd := range cmds {
		if err := d.send(ctx, cmd); err != nil {
			return errFactory.Wrap(errors.ErrConnection, err).WithData(cmd)
		}
	}

	return nil
}

func (d *scpiDevice) Read(ctx context.Context) (Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	errFactory := errors.New()
	if d.closed {
		return Reading{}, errFactory.WithMessage(errors.ErrCommunication, "device is closed")
	}

	volts, err := d.queryFloat(ctx, ":MEAS:VOLT? "+channel)
	if err != nil {
		return Reading{}, err
	}

	amps, err := d.queryFloat(ctx, ":MEAS:CURR? "+channel)
	if err != nil {
		return Reading{}, err
	}

	return Reading{Voltage: volts, Current: amps}, nil
}

func (d *scpiDevice) SetOutput(ctx context.Context, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.setOutput(ctx, on)
}

func (d *scpiDevice) Identity() string {
	return d.identity
}

// Close turns the output off, then releases the socket. The output-off is
// best effort: the socket is released and the device marked closed even if
// the supply never sees the command.
func (d *scpiDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}

	offErr := d.setOutput(context.Background(), false)
	d.closed = true

	if err := d.conn.Close(); err != nil {
		errFactory := errors.New()

		return errFactory.Wrap(errors.ErrConnection, err)
	}

	return offErr
}

// setOutput expects d.mu to be held.
func (d *scpiDevice) setOutput(ctx context.Context, on bool) error {
	errFactory := errors.New()
	if d.closed {
		return errFactory.WithMessage(errors.ErrCommunication, "device is closed")
	}

	state := "OFF"
	if on {
		state = "ON"
	}

	if err := d.send(ctx, fmt.Sprintf(":OUTP %s,%s", channel, state)); err != nil {
		return errFactory.Wrap(errors.ErrCommunication, err)
	}

	return nil
}

// send and query expect d.mu to be held (or the device unpublished).

func (d *scpiDevice) send(ctx context.Context, cmd string) error {
	if err := d.conn.SetDeadline(d.deadline(ctx)); err != nil {
		return err
	}

	_, err := fmt.Fprintf(d.conn, "%s\n", cmd)

	return err
}

func (d *scpiDevice) query(ctx context.Context, cmd string) (string, error) {
	if err := d.send(ctx, cmd); err != nil {
		return "", err
	}

	reply, err := d.r.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(reply), nil
}

func (d *scpiDevice) queryFloat(ctx context.Context, cmd string) (float64, error) {
	errFactory := errors.New()

	reply, err := d.query(ctx, cmd)
	if err != nil {
		return 0, errFactory.Wrap(errors.ErrCommunication, err).WithData(cmd)
	}

	v, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, errFactory.Wrap(errors.ErrCommunication, err).WithData(reply)
	}

	return v, nil
}

func (d *scpiDevice) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(ioTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	return deadline
}

func scpiFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
