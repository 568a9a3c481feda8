package instrument_test

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/voltaic/psuctl/internal/errors"
	"codeberg.org/voltaic/psuctl/internal/instrument"
	"codeberg.org/voltaic/psuctl/internal/session"
)

const testIdentity = "VOLTAIC,PSU-3005,SN01234,1.0.4"

// scpiServer is a minimal bench-supply stand-in: it records every command it
// receives and answers the three queries the driver uses.
type scpiServer struct {
	ln net.Listener

	mu    sync.Mutex
	cmds  []string
	volts string
	amps  string
}

func newSCPIServer(t *testing.T) *scpiServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "Failed to start the fake supply")

	s := &scpiServer{ln: ln, volts: "4.000", amps: "0.500"}
	go s.serve()
	t.Cleanup(func() { ln.Close() })

	return s
}

func (s *scpiServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *scpiServer) handle(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimSpace(line)

		s.mu.Lock()
		s.cmds = append(s.cmds, cmd)
		volts, amps := s.volts, s.amps
		s.mu.Unlock()

		switch {
		case cmd == "*IDN?":
			fmt.Fprintf(conn, "%s\n", testIdentity)
		case strings.HasPrefix(cmd, ":MEAS:VOLT?"):
			fmt.Fprintf(conn, "%s\n", volts)
		case strings.HasPrefix(cmd, ":MEAS:CURR?"):
			fmt.Fprintf(conn, "%s\n", amps)
		}
	}
}

func (s *scpiServer) addr() string { return s.ln.Addr().String() }

func (s *scpiServer) setReplies(volts, amps string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volts, s.amps = volts, amps
}

func (s *scpiServer) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.cmds))
	copy(out, s.cmds)

	return out
}

// waitForCommands blocks until the server has seen n commands. Writes are
// fire-and-forget on the driver side, so tests must not assert immediately.
func (s *scpiServer) waitForCommands(t *testing.T, n int) []string {
	t.Helper()

	require.Eventuallyf(t, func() bool {
		return len(s.commands()) >= n
	}, 2*time.Second, 5*time.Millisecond, "Expected the supply to receive %d commands, got %v", n, s.commands())

	return s.commands()
}

func TestDialIdentifiesSupply(t *testing.T) {
	srv := newSCPIServer(t)

	dev, err := instrument.Dial(context.Background(), srv.addr())
	require.NoError(t, err, "Failed to dial the fake supply")
	defer dev.Close()

	assert.Equal(t, testIdentity, dev.Identity(), "Expected the identification reply to be kept")
}

func TestDialConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = instrument.Dial(context.Background(), addr)
	require.Error(t, err, "Expected dialing a dead port to fail")
	assert.True(t, errors.HasCode(err, errors.ErrConnection), "Expected a connection error code")
	assert.Contains(t, err.Error(), addr, "Expected the error to name the address")
}

func TestDialHandlesImmediateHangup(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()

	_, err = instrument.Dial(context.Background(), ln.Addr().String())
	require.Error(t, err, "Expected a supply that hangs up during identification to fail the dial")
	assert.True(t, errors.HasCode(err, errors.ErrConnection))
}

func TestConfigureConstantVoltage(t *testing.T) {
	srv := newSCPIServer(t)

	dev, err := instrument.Dial(context.Background(), srv.addr())
	require.NoError(t, err)
	defer dev.Close()

	set := instrument.SettingsFor(session.Config{Voltage: 4.0, Current: 0.5, Mode: session.ConstantVoltage})
	require.NoError(t, dev.Configure(context.Background(), set))

	cmds := srv.waitForCommands(t, 4)
	assert.Equal(t, []string{
		"*IDN?",
		":OUTP:OVP OFF",
		":APPL CH1,4,0.5",
		":OUTP CH1,ON",
	}, cmds, "Expected the constant voltage programming sequence")
}

func TestConfigureConstantCurrent(t *testing.T) {
	srv := newSCPIServer(t)

	dev, err := instrument.Dial(context.Background(), srv.addr())
	require.NoError(t, err)
	defer dev.Close()

	set := instrument.SettingsFor(session.Config{
		Voltage:   2.0,
		Current:   1.0,
		Mode:      session.ConstantCurrent,
		Threshold: 4.2,
	})
	require.NoError(t, dev.Configure(context.Background(), set))

	cmds := srv.waitForCommands(t, 5)
	assert.Equal(t, []string{
		"*IDN?",
		":VOLT:PROT 4.2",
		":OUTP:OVP ON",
		":APPL CH1,2,1",
		":OUTP CH1,ON",
	}, cmds, "Expected over-voltage protection to be armed at the cutoff threshold")
}

func TestReadParsesMeasurements(t *testing.T) {
	srv := newSCPIServer(t)
	srv.setReplies("3.981", "0.472")

	dev, err := instrument.Dial(context.Background(), srv.addr())
	require.NoError(t, err)
	defer dev.Close()

	r, err := dev.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3.981, r.Voltage)
	assert.Equal(t, 0.472, r.Current)
}

func TestReadRejectsMalformedReply(t *testing.T) {
	srv := newSCPIServer(t)
	srv.setReplies("ERR -113", "0.5")

	dev, err := instrument.Dial(context.Background(), srv.addr())
	require.NoError(t, err)
	defer dev.Close()

	_, err = dev.Read(context.Background())
	require.Error(t, err, "Expected an unparseable measurement to fail")
	assert.True(t, errors.HasCode(err, errors.ErrCommunication), "Expected a communication error code")
}

func TestSetOutput(t *testing.T) {
	srv := newSCPIServer(t)

	dev, err := instrument.Dial(context.Background(), srv.addr())
	require.NoError(t, err)
	defer dev.Close()

	require.NoError(t, dev.SetOutput(context.Background(), true))
	require.NoError(t, dev.SetOutput(context.Background(), false))

	cmds := srv.waitForCommands(t, 3)
	assert.Equal(t, ":OUTP CH1,ON", cmds[1])
	assert.Equal(t, ":OUTP CH1,OFF", cmds[2])
}

func TestCloseTurnsOutputOff(t *testing.T) {
	srv := newSCPIServer(t)

	dev, err := instrument.Dial(context.Background(), srv.addr())
	require.NoError(t, err)

	require.NoError(t, dev.Close())
	assert.NoError(t, dev.Close(), "Expected a second Close to be a no-op")

	cmds := srv.waitForCommands(t, 2)
	assert.Equal(t, ":OUTP CH1,OFF", cmds[len(cmds)-1], "Expected Close to drop the output before hanging up")

	_, err = dev.Read(context.Background())
	require.Error(t, err, "Expected reads on a closed device to fail")
	assert.Contains(t, err.Error(), "device is closed")

	err = dev.SetOutput(context.Background(), true)
	require.Error(t, err, "Expected output switching on a closed device to fail")
}

func TestSettingsFor(t *testing.T) {
	cv := instrument.SettingsFor(session.Config{Voltage: 4.0, Current: 0.5, Mode: session.ConstantVoltage, Threshold: 0.062})
	assert.Equal(t, instrument.Settings{Voltage: 4.0, Current: 0.5}, cv,
		"Expected constant voltage to leave over-voltage protection unset")

	cc := instrument.SettingsFor(session.Config{Voltage: 2.0, Current: 1.0, Mode: session.ConstantCurrent, Threshold: 4.2})
	assert.Equal(t, instrument.Settings{Voltage: 2.0, Current: 1.0, ConstantCurrent: true, OverVoltageLimit: 4.2}, cc,
		"Expected the cutoff threshold to double as the protection limit")
}
