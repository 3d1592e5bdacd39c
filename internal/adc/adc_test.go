package adc

import (
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"tinygo.org/x/drivers"
)

var _ drivers.I2C = (*fakeI2C)(nil)

// fakeI2C records writes and serves register reads from regs.
type fakeI2C struct {
	mu     sync.Mutex
	regs   map[byte][]byte
	writes [][]byte
	addrs  []uint16
	err    error
}

func (f *fakeI2C) Tx(addr uint16, w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.addrs = append(f.addrs, addr)
	if len(w) > 0 {
		f.writes = append(f.writes, append([]byte(nil), w...))
	}
	if len(r) > 0 {
		copy(r, f.regs[w[0]])
	}
	return nil
}

func TestADS1115Read(t *testing.T) {
	tests := []struct {
		name       string
		gain       float64
		channel    int
		raw        []byte
		wantConfig uint16
		want       float64
	}{
		// 19733 counts * 187.5uV
		{"gain 2/3 channel 0", 2.0 / 3.0, 0, []byte{0x4d, 0x15}, 0xc183, 19733 * 0.0001875},
		{"gain 1 channel 2", 1, 2, []byte{0x70, 0x00}, 0xe383, 0x7000 * 0.000125},
		{"negative reading", 2, 3, []byte{0xff, 0xf0}, 0xf583, -16 * 0.0000625},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gain, err := ParseGain(tt.gain)
			if err != nil {
				t.Fatalf("ParseGain: %v", err)
			}
			bus := &fakeI2C{regs: map[byte][]byte{regConversion: tt.raw}}
			d := NewADS1115(bus, ADS1115Address, gain)
			var slept time.Duration
			d.sleep = func(wait time.Duration) { slept += wait }

			got, err := d.Read(tt.channel)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("voltage = %v, want %v", got, tt.want)
			}
			if slept == 0 {
				t.Error("no conversion wait")
			}
			if len(bus.writes) != 2 {
				t.Fatalf("writes = %d, want 2", len(bus.writes))
			}
			cfg := bus.writes[0]
			if cfg[0] != regConfig {
				t.Fatalf("first write register = %#x, want config", cfg[0])
			}
			if got := uint16(cfg[1])<<8 | uint16(cfg[2]); got != tt.wantConfig {
				t.Errorf("config = %#04x, want %#04x", got, tt.wantConfig)
			}
			for _, a := range bus.addrs {
				if a != ADS1115Address {
					t.Errorf("addressed 0x%02x, want 0x48", a)
				}
			}
		})
	}
}

func TestADS1115Errors(t *testing.T) {
	gain, _ := ParseGain(0)
	d := NewADS1115(&fakeI2C{}, ADS1115Address, gain)
	d.sleep = func(time.Duration) {}
	if _, err := d.Read(4); err == nil {
		t.Error("expected error for channel 4")
	}

	busErr := errors.New("nack")
	d = NewADS1115(&fakeI2C{err: busErr}, ADS1115Address, gain)
	d.sleep = func(time.Duration) {}
	if _, err := d.Read(0); !errors.Is(err, busErr) {
		t.Errorf("err = %v, want wrapped bus error", err)
	}

	if _, err := ParseGain(3); err == nil {
		t.Error("expected error for gain 3")
	}
}

func TestPiSugar3Read(t *testing.T) {
	// 3987 mV little endian.
	bus := &fakeI2C{regs: map[byte][]byte{regBatteryMillivolts: {0x93, 0x0f}}}
	got, err := NewPiSugar3(bus, PiSugar3Address).Read(0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if math.Abs(got-3.987) > 1e-9 {
		t.Errorf("voltage = %v, want 3.987", got)
	}
	if bus.addrs[0] != PiSugar3Address {
		t.Errorf("addressed 0x%02x, want 0x57", bus.addrs[0])
	}
}

// fakePort serves chunks in order, then reports timeouts as empty reads.
type fakePort struct {
	chunks []string
	resets int
	closed bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.chunks) == 0 {
		return 0, nil
	}
	n := copy(b, p.chunks[0])
	p.chunks = p.chunks[1:]
	return n, nil
}

func (p *fakePort) ResetInputBuffer() error { p.resets++; return nil }
func (p *fakePort) Close() error            { p.closed = true; return nil }

var _ io.ReadCloser = (*fakePort)(nil)

func newTestSerial(p *fakePort) *Serial {
	s := newSerial(p, time.Second)
	now := time.Unix(0, 0)
	s.now = func() time.Time {
		now = now.Add(100 * time.Millisecond)
		return now
	}
	return s
}

func TestSerialRead(t *testing.T) {
	tests := []struct {
		name    string
		chunks  []string
		want    float64
		wantErr error
	}{
		{"single chunk", []string{"3.61\r\n"}, 3.61, nil},
		{"split line", []string{"4.", "02", "\n3.9\n"}, 4.02, nil},
		{"no newline", []string{"3.7"}, 0, ErrNoLine},
		{"silent device", nil, 0, ErrNoLine},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePort{chunks: tt.chunks}
			got, err := newTestSerial(p).Read(0)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if got != tt.want {
				t.Errorf("voltage = %v, want %v", got, tt.want)
			}
			if p.resets != 1 {
				t.Errorf("resets = %d, want 1", p.resets)
			}
		})
	}
}

func TestSerialReadGarbage(t *testing.T) {
	s := newTestSerial(&fakePort{chunks: []string{"ready\n"}})
	if _, err := s.Read(0); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestOpenUnknownKind(t *testing.T) {
	if _, err := Open(Config{Kind: "lm75"}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
	if Kind("lm75").Valid() || !KindPiSugar3.Valid() {
		t.Error("Valid() mismatch")
	}
}
