package adc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
)

const (
	DefaultSerialDevice = "/dev/ttyACM0"
	DefaultBaudRate     = 9600
	DefaultReadTimeout  = time.Second
)

// ErrNoLine is returned when the device sent no complete line in time.
var ErrNoLine = errors.New("adc: no line received")

type linePort interface {
	io.ReadCloser
	ResetInputBuffer() error
}

// Serial reads voltages sent as text lines ("3.61\n") by a microcontroller.
type Serial struct {
	port    linePort
	timeout time.Duration
	now     func() time.Time
}

// OpenSerial opens device at baud.
func OpenSerial(device string, baud int, timeout time.Duration) (*Serial, error) {
	if device == "" {
		device = DefaultSerialDevice
	}
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("adc: open %s: %w", device, err)
	}
	// Short reads let the line deadline be checked between chunks.
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("adc: %s read timeout: %w", device, err)
	}
	return newSerial(port, timeout), nil
}

func newSerial(port linePort, timeout time.Duration) *Serial {
	return &Serial{port: port, timeout: timeout, now: time.Now}
}

// Read discards buffered input, waits for the next full line and parses it
// as a voltage. The channel is ignored.
func (s *Serial) Read(int) (float64, error) {
	if err := s.port.ResetInputBuffer(); err != nil {
		return 0, fmt.Errorf("adc: serial reset: %w", err)
	}
	line, err := s.readLine()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		return 0, fmt.Errorf("adc: serial value %q: %w", line, err)
	}
	return v, nil
}

func (s *Serial) readLine() (string, error) {
	deadline := s.now().Add(s.timeout)
	var (
		buf   bytes.Buffer
		chunk [64]byte
	)
	for {
		n, err := s.port.Read(chunk[:])
		if n > 0 {
			buf.Write(chunk[:n])
			if i := bytes.IndexByte(buf.Bytes(), '\n'); i >= 0 {
				return string(buf.Bytes()[:i]), nil
			}
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("adc: serial read: %w", err)
		}
		if !s.now().Before(deadline) {
			return "", ErrNoLine
		}
	}
}

// Close closes the port.
func (s *Serial) Close() error { return s.port.Close() }
