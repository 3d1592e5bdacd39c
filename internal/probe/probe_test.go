package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
)

type proberFunc func(ctx context.Context) (State, error)

func (f proberFunc) GetState(ctx context.Context) (State, error) { return f(ctx) }

func fakeRunner(t *testing.T, want []string, out string, err error) Runner {
	t.Helper()
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		if got := append([]string{name}, args...); want != nil && !reflect.DeepEqual(got, want) {
			t.Errorf("argv = %v, want %v", got, want)
		}
		return []byte(out), err
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestGetConvertsFailures(t *testing.T) {
	ok := proberFunc(func(context.Context) (State, error) { return State{Label: "wifi_4_bar"}, nil })
	st, err := Get(context.Background(), ok, time.Second)
	if err != nil || st.Label != "wifi_4_bar" {
		t.Fatalf("Get = %+v, %v", st, err)
	}

	failing := proberFunc(func(context.Context) (State, error) { return State{}, errors.New("boom") })
	st, err = Get(context.Background(), failing, time.Second)
	if !errors.Is(err, ErrUnavailable) || st.Label != Unavailable {
		t.Errorf("failing probe: %+v, %v", st, err)
	}

	empty := proberFunc(func(context.Context) (State, error) { return State{}, nil })
	if st, err := Get(context.Background(), empty, time.Second); !errors.Is(err, ErrUnavailable) || st.Label != Unavailable {
		t.Errorf("empty label: %+v, %v", st, err)
	}

	slow := proberFunc(func(ctx context.Context) (State, error) {
		<-ctx.Done()
		return State{}, ctx.Err()
	})
	start := time.Now()
	st, err = Get(context.Background(), slow, 20*time.Millisecond)
	if !errors.Is(err, ErrUnavailable) || st.Label != Unavailable {
		t.Errorf("slow probe: %+v, %v", st, err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout not applied")
	}
}

func TestWifiStates(t *testing.T) {
	const wireless = `Inter-| sta-|   Quality        |   Discarded packets               | Missed | WE
 face | tus | link level noise |  nwid  crypt   frag  retry   misc | beacon | 22
 wlan0: 0000   54.  -56.  -256        0      0      0      0      0        0
`
	tests := []struct {
		name      string
		operstate string
		wireless  string
		want      string
	}{
		{"missing interface", "", "", WifiOff},
		{"down", "down\n", "", WifiOff},
		{"up without link", "up\n", "Inter-| sta-|\n face | tus |\n", WifiWarning},
		{"strong link", "up\n", wireless, "wifi_4_bar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := t.TempDir()
			proc := t.TempDir()
			if tt.operstate != "" {
				writeFile(t, filepath.Join(sys, "class/net/wlan0/operstate"), tt.operstate)
			}
			writeFile(t, filepath.Join(proc, "net/wireless"), tt.wireless)

			w := &Wifi{Interface: "wlan0", SysRoot: sys, ProcRoot: proc}
			st, err := w.GetState(context.Background())
			if err != nil {
				t.Fatalf("GetState: %v", err)
			}
			if st.Label != tt.want {
				t.Errorf("label = %q, want %q", st.Label, tt.want)
			}
		})
	}
}

func TestWifiBars(t *testing.T) {
	tests := map[int]string{0: "wifi_1_bar", 17: "wifi_1_bar", 18: "wifi_2_bar", 35: "wifi_3_bar", 53: "wifi_4_bar", 70: "wifi_4_bar"}
	for q, want := range tests {
		if got := wifiBars(q); got != want {
			t.Errorf("wifiBars(%d) = %q, want %q", q, got, want)
		}
	}
}

func TestBluetoothState(t *testing.T) {
	adapter := func(powered bool) map[string]map[string]dbus.Variant {
		return map[string]map[string]dbus.Variant{
			bluezAdapter: {"Powered": dbus.MakeVariant(powered)},
		}
	}
	device := func(alias string, connected bool) map[string]map[string]dbus.Variant {
		return map[string]map[string]dbus.Variant{
			bluezDevice: {"Alias": dbus.MakeVariant(alias), "Connected": dbus.MakeVariant(connected)},
		}
	}

	tests := []struct {
		name string
		objs managedObjects
		want State
	}{
		{"no adapter", managedObjects{}, State{Label: BluetoothDisabled}},
		{"powered off", managedObjects{"/org/bluez/hci0": adapter(false)}, State{Label: BluetoothDisabled}},
		{"powered idle", managedObjects{
			"/org/bluez/hci0":                   adapter(true),
			"/org/bluez/hci0/dev_00_11_22_33_44": device("Pad", false),
		}, State{Label: BluetoothEnabled}},
		{"connected", managedObjects{
			"/org/bluez/hci0":                   adapter(true),
			"/org/bluez/hci0/dev_00_11_22_33_44": device("Pro Controller", true),
			"/org/bluez/hci0/dev_00_11_22_33_55": device("8BitDo", true),
		}, State{Label: BluetoothConnected, Info: "8BitDo,Pro Controller"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Bluetooth{fetch: func(context.Context) (managedObjects, error) { return tt.objs, nil }}
			got, err := b.GetState(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("state = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAudioStates(t *testing.T) {
	tests := []struct {
		name  string
		out   string
		label string
	}{
		{"loud", "Mono: Playback 60 [73%] [-3.00dB] [on]", VolumeUp},
		{"quiet", "Mono: Playback 10 [12%] [-30.00dB] [on]", VolumeDown},
		{"zero", "Mono: Playback 0 [0%] [-99.00dB] [on]", VolumeMute},
		{"muted", "Mono: Playback 60 [73%] [-3.00dB] [off]", VolumeOff},
		{"no switch", "Mono: Playback 60 [50%]", VolumeUp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Audio{Run: fakeRunner(t, []string{"amixer", "get", "Master"}, tt.out, nil)}
			st, err := a.GetState(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if st.Label != tt.label {
				t.Errorf("label = %q, want %q", st.Label, tt.label)
			}
		})
	}

	a := &Audio{Control: "PCM", Run: fakeRunner(t, []string{"amixer", "get", "PCM"}, "garbage", nil)}
	if _, err := a.GetState(context.Background()); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnvironmentFlags(t *testing.T) {
	tests := []struct {
		out     string
		want    Flags
		summary string
	}{
		{"throttled=0x0\n", Flags{}, EnvNormal},
		{"throttled=0x50005\n", Flags{UnderVoltage: true, Throttled: true}, "throttled"},
		{"throttled=0x2\n", Flags{FreqCapped: true}, "freq-capped"},
		{"throttled=0x1\n", Flags{UnderVoltage: true}, "under-voltage"},
	}

	for _, tt := range tests {
		t.Run(tt.out, func(t *testing.T) {
			e := &Environment{Run: fakeRunner(t, []string{"vcgencmd", "get_throttled"}, tt.out, nil)}
			got, err := e.Flags(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("flags = %+v, want %+v", got, tt.want)
			}
			if got.Summary() != tt.summary {
				t.Errorf("summary = %q, want %q", got.Summary(), tt.summary)
			}
		})
	}

	e := &Environment{Run: fakeRunner(t, nil, "error=1", nil)}
	if _, err := e.Flags(context.Background()); err == nil {
		t.Error("expected error for malformed output")
	}
}

func TestGameDetector(t *testing.T) {
	proc := t.TempDir()
	writeFile(t, filepath.Join(proc, "1", "comm"), "systemd\n")
	writeFile(t, filepath.Join(proc, "812", "comm"), "RetroArch\n")
	writeFile(t, filepath.Join(proc, "self", "comm"), "ignored\n")

	g, err := NewGameDetector("retroarch", proc)
	if err != nil {
		t.Fatal(err)
	}
	running, err := g.Running(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !running {
		t.Error("case-insensitive match not found")
	}

	g, err = NewGameDetector("kodi", proc)
	if err != nil {
		t.Fatal(err)
	}
	if running, _ := g.Running(context.Background()); running {
		t.Error("unexpected match for kodi")
	}
}

func TestResolutionDetect(t *testing.T) {
	fbDir := t.TempDir()
	fb := filepath.Join(fbDir, "virtual_size")

	tests := []struct {
		name       string
		override   string
		fb         string
		tvservice  string
		tvErr      error
		wantW      int
		wantH      int
		wantSource string
	}{
		{"override", "800x480", "1920,1080\n", "", nil, 800, 480, "config"},
		{"framebuffer", "", "1280,720\n", "", nil, 1280, 720, "framebuffer"},
		{"tvservice", "", "", "state 0xa [HDMI CEA (16) RGB lim 16:9], 1920x1080 @ 60.00Hz, progressive", nil, 1920, 1080, "tvservice"},
		{"bad override falls through", "wide", "", "", errors.New("not found"), DefaultWidth, DefaultHeight, "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = os.Remove(fb)
			if tt.fb != "" {
				writeFile(t, fb, tt.fb)
			}
			r := &Resolution{
				Override:        tt.override,
				FramebufferPath: fb,
				Run:             fakeRunner(t, []string{"tvservice", "-s"}, tt.tvservice, tt.tvErr),
			}
			w, h, src := r.Detect(context.Background())
			if w != tt.wantW || h != tt.wantH || src != tt.wantSource {
				t.Errorf("Detect = %dx%d (%s), want %dx%d (%s)", w, h, src, tt.wantW, tt.wantH, tt.wantSource)
			}
		})
	}
}
