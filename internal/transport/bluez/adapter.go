package bluez

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sensoroic/sensoroic/internal/discovery"
	"github.com/sensoroic/sensoroic/internal/logging"
)

// Adapter drives a BlueZ controller for LE scanning. It implements
// discovery.ScanAdapter and discovery.CacheRefresher.
type Adapter struct {
	conn *dbus.Conn
	path dbus.ObjectPath
	log  *zap.Logger

	mu       sync.Mutex
	signals  chan *dbus.Signal
	matches  [][]dbus.MatchOption
	scanDone chan struct{}
	wg       sync.WaitGroup
}

// Open connects to the system bus and binds the named adapter ("hci0"
// when empty).
func Open(name string, log *zap.Logger) (*Adapter, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	return NewAdapter(conn, name, log), nil
}

// NewAdapter binds an adapter on an existing bus connection.
func NewAdapter(conn *dbus.Conn, name string, log *zap.Logger) *Adapter {
	if log == nil {
		log = logging.Named("bluez")
	}
	return &Adapter{
		conn: conn,
		path: adapterPath(name),
		log:  log,
	}
}

// Conn returns the bus connection, shared with the GATT transport.
func (a *Adapter) Conn() *dbus.Conn {
	return a.conn
}

// Path returns the adapter's object path.
func (a *Adapter) Path() dbus.ObjectPath {
	return a.path
}

// Available checks that the adapter exists and is powered.
func (a *Adapter) Available(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := a.conn.Object(busName, a.path).GetProperty(adapterIface + ".Powered")
	if err != nil {
		return fmt.Errorf("adapter %s: %w", a.path, err)
	}
	if powered, _ := v.Value().(bool); !powered {
		return ErrNotPowered
	}
	return nil
}

// StartScan sets an LE discovery filter and starts discovery. Devices
// are reported from InterfacesAdded and PropertiesChanged signals until
// StopScan.
func (a *Adapter) StartScan(ctx context.Context, filter uuid.UUID, found func(discovery.ScanCandidate)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.signals != nil {
		return errors.New("scan already running")
	}

	obj := a.conn.Object(busName, a.path)
	args := map[string]dbus.Variant{
		"Transport":     dbus.MakeVariant("le"),
		"DuplicateData": dbus.MakeVariant(false),
	}
	if filter != uuid.Nil {
		args["UUIDs"] = dbus.MakeVariant([]string{filter.String()})
	}
	if err := obj.CallWithContext(ctx, adapterIface+".SetDiscoveryFilter", 0, args).Err; err != nil {
		return fmt.Errorf("failed to set discovery filter: %w", err)
	}

	matches := [][]dbus.MatchOption{
		{dbus.WithMatchInterface(objectManagerIface), dbus.WithMatchMember("InterfacesAdded")},
		{dbus.WithMatchInterface(propertiesIface), dbus.WithMatchMember("PropertiesChanged"), dbus.WithMatchPathNamespace(a.path)},
	}
	for _, m := range matches {
		if err := a.conn.AddMatchSignalContext(ctx, m...); err != nil {
			a.removeMatches(matches)
			return fmt.Errorf("failed to subscribe to device signals: %w", err)
		}
	}

	signals := make(chan *dbus.Signal, 32)
	done := make(chan struct{})
	a.conn.Signal(signals)

	if err := obj.CallWithContext(ctx, adapterIface+".StartDiscovery", 0).Err; err != nil {
		a.conn.RemoveSignal(signals)
		a.removeMatches(matches)
		return fmt.Errorf("failed to start discovery: %w", err)
	}

	a.signals = signals
	a.matches = matches
	a.scanDone = done
	a.wg.Add(1)
	go a.dispatch(signals, done, filter, found)

	a.log.Debug("Discovery started", zap.String("adapter", string(a.path)), zap.Stringer("filter", filter))
	return nil
}

// StopScan stops discovery and the signal dispatcher. It is safe to call
// when no scan is running.
func (a *Adapter) StopScan() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.signals == nil {
		return nil
	}

	err := a.conn.Object(busName, a.path).Call(adapterIface+".StopDiscovery", 0).Err

	close(a.scanDone)
	a.conn.RemoveSignal(a.signals)
	a.wg.Wait()
	a.removeMatches(a.matches)

	a.signals = nil
	a.matches = nil
	a.scanDone = nil

	if err != nil {
		return fmt.Errorf("failed to stop discovery: %w", err)
	}
	a.log.Debug("Discovery stopped", zap.String("adapter", string(a.path)))
	return nil
}

func (a *Adapter) removeMatches(matches [][]dbus.MatchOption) {
	for _, m := range matches {
		if err := a.conn.RemoveMatchSignal(m...); err != nil {
			a.log.Debug("Failed to remove signal match", zap.Error(err))
		}
	}
}

func (a *Adapter) dispatch(signals <-chan *dbus.Signal, done <-chan struct{}, filter uuid.UUID, found func(discovery.ScanCandidate)) {
	defer a.wg.Done()
	for {
		select {
		case <-done:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if c, ok := a.candidate(sig); ok && advertises(c, filter) {
				found(c)
			}
		}
	}
}

// candidate extracts a device observation from a bus signal.
func (a *Adapter) candidate(sig *dbus.Signal) (discovery.ScanCandidate, bool) {
	switch sig.Name {
	case interfacesAdded:
		if len(sig.Body) < 2 {
			return discovery.ScanCandidate{}, false
		}
		path, _ := sig.Body[0].(dbus.ObjectPath)
		ifaces, _ := sig.Body[1].(map[string]map[string]dbus.Variant)
		props, ok := ifaces[deviceIface]
		if !ok || !strings.HasPrefix(string(path), string(a.path)+"/") {
			return discovery.ScanCandidate{}, false
		}
		return candidateFromProps(path, props)

	case propertiesChanged:
		if len(sig.Body) < 2 {
			return discovery.ScanCandidate{}, false
		}
		if iface, _ := sig.Body[0].(string); iface != deviceIface {
			return discovery.ScanCandidate{}, false
		}
		changed, _ := sig.Body[1].(map[string]dbus.Variant)
		// An RSSI update means a fresh advertisement.
		if _, ok := changed["RSSI"]; !ok {
			return discovery.ScanCandidate{}, false
		}
		return candidateFromProps(sig.Path, changed)
	}
	return discovery.ScanCandidate{}, false
}

// RefreshCache connects to and disconnects from host so that BlueZ
// re-resolves its GATT services.
func (a *Adapter) RefreshCache(ctx context.Context, host string) error {
	mac, err := ParseTarget(host)
	if err != nil {
		return err
	}
	dev := a.conn.Object(busName, devicePath(a.path, mac))
	if err := dev.CallWithContext(ctx, deviceIface+".Connect", 0).Err; err != nil {
		return fmt.Errorf("failed to connect %s: %w", mac, err)
	}
	if err := dev.CallWithContext(ctx, deviceIface+".Disconnect", 0).Err; err != nil {
		return fmt.Errorf("failed to disconnect %s: %w", mac, err)
	}
	a.log.Debug("Service cache refreshed", zap.String("host", mac))
	return nil
}

// Close releases the bus connection.
func (a *Adapter) Close() error {
	_ = a.StopScan()
	return a.conn.Close()
}
