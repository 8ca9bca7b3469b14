package bluez

import (
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/sensoroic/sensoroic/internal/discovery"
)

// BlueZ D-Bus names.
const (
	busName = "org.bluez"

	adapterIface        = "org.bluez.Adapter1"
	deviceIface         = "org.bluez.Device1"
	characteristicIface = "org.bluez.GattCharacteristic1"

	objectManagerIface = "org.freedesktop.DBus.ObjectManager"
	propertiesIface    = "org.freedesktop.DBus.Properties"

	interfacesAdded   = objectManagerIface + ".InterfacesAdded"
	propertiesChanged = propertiesIface + ".PropertiesChanged"

	// DefaultAdapter is used when no adapter name is configured.
	DefaultAdapter = "hci0"

	// Scheme prefixes hosts reached over GATT.
	Scheme = "coap+gatt://"
)

// Mynewt OIC GATT characteristics.
var (
	RequestCharacteristic  = uuid.MustParse("AD7B334F-4637-4B86-90B6-9D787F03D218")
	ResponseCharacteristic = uuid.MustParse("E9241982-4580-42C4-8831-95048216B256")
)

var (
	// ErrInvalidAddress is returned for targets that are not a MAC address.
	ErrInvalidAddress = errors.New("invalid bluetooth address")

	// ErrNotPowered is returned when the adapter exists but is off.
	ErrNotPowered = errors.New("bluetooth adapter is powered off")

	// ErrCharacteristicNotFound is returned when a device lacks the OIC
	// request or response characteristic.
	ErrCharacteristicNotFound = errors.New("oic characteristic not found")
)

// managedObjects is the reply of ObjectManager.GetManagedObjects.
type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

func adapterPath(name string) dbus.ObjectPath {
	if name == "" {
		name = DefaultAdapter
	}
	return dbus.ObjectPath("/org/bluez/" + name)
}

// devicePath builds "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func devicePath(adapter dbus.ObjectPath, mac string) dbus.ObjectPath {
	return dbus.ObjectPath(string(adapter) + "/dev_" + strings.ReplaceAll(strings.ToUpper(mac), ":", "_"))
}

// addressFromPath extracts the MAC address from a device object path,
// returning "" for paths that are not devices (e.g. characteristics).
func addressFromPath(path dbus.ObjectPath) string {
	s := string(path)
	i := strings.LastIndex(s, "/dev_")
	if i < 0 {
		return ""
	}
	dev := s[i+len("/dev_"):]
	if strings.Contains(dev, "/") {
		return ""
	}
	return strings.ReplaceAll(dev, "_", ":")
}

// ParseTarget accepts "AA:BB:CC:DD:EE:FF" or "coap+gatt://AA:BB:CC:DD:EE:FF"
// and returns the upper-cased MAC address.
func ParseTarget(target string) (string, error) {
	mac := strings.ToUpper(strings.TrimPrefix(target, Scheme))
	parts := strings.Split(mac, ":")
	if len(parts) != 6 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, target)
	}
	for _, p := range parts {
		if len(p) != 2 || !isHex(p[0]) || !isHex(p[1]) {
			return "", fmt.Errorf("%w: %q", ErrInvalidAddress, target)
		}
	}
	return mac, nil
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('A' <= c && c <= 'F')
}

// candidateFromProps converts Device1 properties into a scan candidate.
func candidateFromProps(path dbus.ObjectPath, props map[string]dbus.Variant) (discovery.ScanCandidate, bool) {
	c := discovery.ScanCandidate{Address: addressFromPath(path)}
	if v, ok := props["Address"]; ok {
		if s, ok := v.Value().(string); ok && s != "" {
			c.Address = s
		}
	}
	if c.Address == "" {
		return c, false
	}
	if v, ok := props["Alias"]; ok {
		c.Name, _ = v.Value().(string)
	}
	if v, ok := props["Name"]; ok {
		if s, ok := v.Value().(string); ok {
			c.Name = s
		}
	}
	if v, ok := props["RSSI"]; ok {
		c.RSSI, _ = v.Value().(int16)
	}
	if v, ok := props["UUIDs"]; ok {
		if list, ok := v.Value().([]string); ok {
			for _, s := range list {
				if id, err := uuid.Parse(s); err == nil {
					c.ServiceUUIDs = append(c.ServiceUUIDs, id.String())
				}
			}
		}
	}
	return c, true
}

// advertises reports whether the candidate may carry filter. Candidates
// with no advertised UUIDs are given the benefit of the doubt, since BlueZ
// already applies the discovery filter.
func advertises(c discovery.ScanCandidate, filter uuid.UUID) bool {
	if filter == uuid.Nil || len(c.ServiceUUIDs) == 0 {
		return true
	}
	for _, id := range c.ServiceUUIDs {
		if id == filter.String() {
			return true
		}
	}
	return false
}

// findCharacteristics locates the request and response characteristics
// of the device at dev.
func findCharacteristics(objects managedObjects, dev dbus.ObjectPath) (req, resp dbus.ObjectPath, err error) {
	prefix := string(dev) + "/"
	for path, ifaces := range objects {
		if !strings.HasPrefix(string(path), prefix) {
			continue
		}
		props, ok := ifaces[characteristicIface]
		if !ok {
			continue
		}
		v, ok := props["UUID"]
		if !ok {
			continue
		}
		s, _ := v.Value().(string)
		id, perr := uuid.Parse(s)
		if perr != nil {
			continue
		}
		switch id {
		case RequestCharacteristic:
			req = path
		case ResponseCharacteristic:
			resp = path
		}
	}
	if req == "" || resp == "" {
		return "", "", fmt.Errorf("%w on %s", ErrCharacteristicNotFound, dev)
	}
	return req, resp, nil
}

// chunk splits data into writes of at most size bytes.
func chunk(data []byte, size int) [][]byte {
	if size <= 0 {
		size = len(data)
	}
	var out [][]byte
	for len(data) > size {
		out = append(out, data[:size])
		data = data[size:]
	}
	if len(data) > 0 {
		out = append(out, data)
	}
	return out
}
