package servo

import (
	"encoding/binary"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/eggbot-project/pitctl/eggboterr"
	"github.com/snksoft/crc"
)

// Wire opcodes for the local "pitd-servo" GPIO daemon protocol.
const (
	opSetPulse byte = 0x01
	opPing     byte = 0x02
)

var crcTable = crc.NewTable(crc.XMODEM)

// crc16 computes the frame CRC the same way nkt/telegram.go computes its
// own telegram CRC: InitCrc, UpdateCrc over the body, then CRC16 to finalize.
func crc16(body []byte) uint16 {
	c := crcTable.InitCrc()
	c = crcTable.UpdateCrc(c, body)
	return crcTable.CRC16(c)
}

// frame builds a [opcode:1][channel:1][value:u16 LE][crc16:u16 LE] wire frame.
func frame(op byte, channel byte, value uint16) []byte {
	buf := make([]byte, 4, 6)
	buf[0] = op
	buf[1] = channel
	binary.LittleEndian.PutUint16(buf[2:4], value)
	crcBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(crcBytes, crc16(buf))
	return append(buf, crcBytes...)
}

// daemonClient manages the TCP connection to the GPIO daemon, reconnecting
// with exponential backoff on failure. Grounded on comm.RemoteDevice's
// Open/Close discipline, specialized to this package's small binary
// protocol instead of a terminator-delimited text protocol.
type daemonClient struct {
	mu   sync.Mutex
	addr string
	conn net.Conn

	connectionAttempts int
	successCount       int
	failureCount       int
	lastSuccess        time.Time
}

func newDaemonClient(addr string) *daemonClient {
	return &daemonClient{addr: addr}
}

// connect probes the TCP port with a 5s timeout, then performs a version
// ping as a control self-test.
func (d *daemonClient) connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connectLocked()
}

func (d *daemonClient) connectLocked() error {
	if d.conn != nil {
		return nil
	}
	d.connectionAttempts++

	op := func() error {
		conn, err := net.DialTimeout("tcp", d.addr, 5*time.Second)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "refused") {
				return backoff.Permanent(err)
			}
			return err
		}
		d.conn = conn
		return nil
	}

	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock,
	})
	if err != nil {
		return eggboterr.Wrap(eggboterr.HardwareUnavailable, "gpio daemon connect failed", err)
	}
	return d.pingLocked()
}

func (d *daemonClient) pingLocked() error {
	f := frame(opPing, 0, 0)
	if _, err := d.conn.Write(f); err != nil {
		return eggboterr.Wrap(eggboterr.ServoCommandFault, "gpio daemon ping write failed", err)
	}
	resp := make([]byte, 6)
	d.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := d.conn.Read(resp); err != nil {
		return eggboterr.Wrap(eggboterr.ServoCommandFault, "gpio daemon ping read failed", err)
	}
	return nil
}

// setPulse writes a pulse-width command for the servo channel. On any
// failure it increments the failure counter and does not itself reconnect;
// the caller (Actuator) decides when repeated failures warrant one.
func (d *daemonClient) setPulse(channel byte, pulseUs uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		d.failureCount++
		return eggboterr.New(eggboterr.ServoCommandFault, "gpio daemon not connected")
	}
	f := frame(opSetPulse, channel, pulseUs)
	d.conn.SetWriteDeadline(time.Now().Add(1 * time.Second))
	if _, err := d.conn.Write(f); err != nil {
		d.failureCount++
		return eggboterr.Wrap(eggboterr.ServoCommandFault, "gpio daemon write failed", err)
	}
	ack := make([]byte, 6)
	d.conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	if _, err := d.conn.Read(ack); err != nil {
		d.failureCount++
		return eggboterr.Wrap(eggboterr.ServoCommandFault, "gpio daemon ack read failed", err)
	}
	if !verifyCRC(ack) {
		d.failureCount++
		return eggboterr.New(eggboterr.ServoCommandFault, "gpio daemon ack crc mismatch")
	}
	d.successCount++
	d.lastSuccess = time.Now()
	return nil
}

func verifyCRC(frameBytes []byte) bool {
	if len(frameBytes) < 6 {
		return false
	}
	body := frameBytes[:4]
	got := binary.LittleEndian.Uint16(frameBytes[4:6])
	want := crc16(body)
	return got == want
}

// ping performs a health check against the daemon.
func (d *daemonClient) ping() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return eggboterr.New(eggboterr.ServoCommandFault, "gpio daemon not connected")
	}
	return d.pingLocked()
}

// reconnect closes any existing connection and connects fresh.
func (d *daemonClient) reconnect() error {
	d.mu.Lock()
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	d.mu.Unlock()
	return d.connect()
}

// close releases the daemon connection.
func (d *daemonClient) close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

// diagnostics reports connection accounting for the servo diagnostics query.
type daemonDiagnostics struct {
	Connected           bool
	ConnectionAttempts  int
	SuccessCount        int
	FailureCount        int
	SuccessRate         float64
	LastSuccessTime     time.Time
}

func (d *daemonClient) diagnostics() daemonDiagnostics {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := d.successCount + d.failureCount
	rate := 0.0
	if total > 0 {
		rate = float64(d.successCount) / float64(total)
	}
	return daemonDiagnostics{
		Connected:          d.conn != nil,
		ConnectionAttempts: d.connectionAttempts,
		SuccessCount:       d.successCount,
		FailureCount:       d.failureCount,
		SuccessRate:        rate,
		LastSuccessTime:    d.lastSuccess,
	}
}
