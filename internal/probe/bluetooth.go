package probe

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
)

// Bluetooth labels.
const (
	BluetoothDisabled  = "bt_disabled"
	BluetoothEnabled   = "bt_enabled"
	BluetoothConnected = "bt_connected"
)

const (
	bluezService   = "org.bluez"
	bluezAdapter   = "org.bluez.Adapter1"
	bluezDevice    = "org.bluez.Device1"
	getManagedObjs = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
)

type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// Bluetooth reports adapter power and connected devices from BlueZ over
// the system D-Bus.
type Bluetooth struct {
	conn  *dbus.Conn
	fetch func(ctx context.Context) (managedObjects, error)
}

// NewBluetooth connects to the system bus.
func NewBluetooth() (*Bluetooth, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	b := &Bluetooth{conn: conn}
	b.fetch = b.managedObjects
	return b, nil
}

// Close closes the bus connection.
func (b *Bluetooth) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

func (b *Bluetooth) managedObjects(ctx context.Context) (managedObjects, error) {
	var objs managedObjects
	call := b.conn.Object(bluezService, dbus.ObjectPath("/")).CallWithContext(ctx, getManagedObjs, 0)
	if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("bluez: %w", err)
	}
	return objs, nil
}

// GetState implements Prober.
func (b *Bluetooth) GetState(ctx context.Context) (State, error) {
	objs, err := b.fetch(ctx)
	if err != nil {
		return State{}, err
	}
	return bluetoothState(objs), nil
}

func bluetoothState(objs managedObjects) State {
	powered := false
	var connected []string

	for _, ifaces := range objs {
		if props, ok := ifaces[bluezAdapter]; ok {
			if v, ok := props["Powered"].Value().(bool); ok && v {
				powered = true
			}
		}
		if props, ok := ifaces[bluezDevice]; ok {
			if v, ok := props["Connected"].Value().(bool); ok && v {
				name, _ := props["Alias"].Value().(string)
				if name == "" {
					name, _ = props["Address"].Value().(string)
				}
				connected = append(connected, name)
			}
		}
	}

	switch {
	case !powered:
		return State{Label: BluetoothDisabled}
	case len(connected) > 0:
		sort.Strings(connected)
		return State{Label: BluetoothConnected, Info: strings.Join(connected, ",")}
	default:
		return State{Label: BluetoothEnabled}
	}
}
