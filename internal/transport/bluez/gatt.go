package bluez

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"go.uber.org/zap"

	"github.com/sensoroic/sensoroic/internal/discovery"
	"github.com/sensoroic/sensoroic/internal/logging"
	"github.com/sensoroic/sensoroic/internal/oic"
	"github.com/sensoroic/sensoroic/internal/protocol"
)

const (
	// DefaultWriteSize fits the default ATT MTU of 23.
	DefaultWriteSize = 20

	resolvePoll     = 100 * time.Millisecond
	teardownTimeout = 2 * time.Second
)

// ErrMulticast is returned for untargeted queries; GATT is point to point.
var ErrMulticast = errors.New("gatt does not support multicast discovery")

// Transport talks CoAP over the Mynewt OIC GATT service: it connects to
// the device, subscribes to the response characteristic, writes a
// TCP-framed request to the request characteristic and decodes the
// reassembled replies. Discovery, single reads and writes, and
// observations all run this way.
type Transport struct {
	// WriteSize bounds each characteristic write.
	WriteSize int

	conn    *dbus.Conn
	adapter dbus.ObjectPath
	log     *zap.Logger
	now     func() time.Time
}

// NewTransport creates a GATT transport on the adapter's bus connection.
func NewTransport(a *Adapter, log *zap.Logger) *Transport {
	if log == nil {
		log = logging.Named("gatt")
	}
	return &Transport{
		WriteSize: DefaultWriteSize,
		conn:      a.Conn(),
		adapter:   a.Path(),
		log:       log,
		now:       time.Now,
	}
}

// Connectivity returns the tags this transport serves.
func (t *Transport) Connectivity() discovery.ConnectivityType {
	return discovery.ConnGATT
}

// FindResource validates target and runs the exchange in the background.
// Connection failures are logged; the caller's wait bounds the attempt.
func (t *Transport) FindResource(ctx context.Context, target, query string, ct discovery.ConnectivityType, onFound func(*discovery.Resource)) error {
	if target == "" {
		return ErrMulticast
	}
	mac, err := ParseTarget(target)
	if err != nil {
		return err
	}
	token, err := message.GetToken()
	if err != nil {
		return err
	}
	req := protocol.NewRequest(codes.GET, query, token)
	go func() {
		err := t.exchange(ctx, mac, req, func(msg message.Message) bool {
			t.deliver(ctx, mac, msg, onFound)
			return true
		})
		if err != nil && ctx.Err() == nil {
			t.log.Warn("GATT discovery failed", zap.String("host", mac), zap.Error(err))
		}
	}()
	return nil
}

// Scheme returns the host prefix this transport answers for.
func (t *Transport) Scheme() string {
	return Scheme
}

// Get reads the representation of href on host.
func (t *Transport) Get(ctx context.Context, host, href string) (*protocol.Response, error) {
	return t.roundTrip(ctx, host, codes.GET, href, nil)
}

// Put writes a CBOR payload to href on host.
func (t *Transport) Put(ctx context.Context, host, href string, payload []byte) (*protocol.Response, error) {
	return t.roundTrip(ctx, host, codes.PUT, href, payload)
}

func (t *Transport) roundTrip(ctx context.Context, host string, code codes.Code, href string, payload []byte) (*protocol.Response, error) {
	mac, err := ParseTarget(host)
	if err != nil {
		return nil, err
	}
	token, err := message.GetToken()
	if err != nil {
		return nil, err
	}
	req := protocol.NewRequest(code, href, token)
	if payload != nil {
		protocol.SetPayload(&req, message.AppCBOR, payload)
	}
	var resp *protocol.Response
	err = t.exchange(ctx, mac, req, func(msg message.Message) bool {
		resp = protocol.FromMessage(msg)
		return true
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Observe registers an observation of href and hands every notification
// to onNotify until ctx is done. The connection stays open meanwhile.
func (t *Transport) Observe(ctx context.Context, host, href string, onNotify func(*protocol.Response)) error {
	mac, err := ParseTarget(host)
	if err != nil {
		return err
	}
	token, err := message.GetToken()
	if err != nil {
		return err
	}
	req := protocol.NewRequest(codes.GET, href, token)
	protocol.SetObserve(&req, 0)
	go func() {
		err := t.exchange(ctx, mac, req, func(msg message.Message) bool {
			onNotify(protocol.FromMessage(msg))
			return false
		})
		if err != nil && ctx.Err() == nil {
			t.log.Warn("GATT observation ended", zap.String("host", mac), zap.String("href", href), zap.Error(err))
		}
	}()
	return nil
}

// exchange connects to mac, writes req and passes every reply carrying
// req's token to handle until handle returns true or ctx is done.
func (t *Transport) exchange(ctx context.Context, mac string, req message.Message, handle func(message.Message) bool) error {
	devPath := devicePath(t.adapter, mac)
	dev := t.conn.Object(busName, devPath)

	if err := dev.CallWithContext(ctx, deviceIface+".Connect", 0).Err; err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer t.teardown(dev)

	if err := t.waitResolved(ctx, dev); err != nil {
		return err
	}

	var objects managedObjects
	if err := t.conn.Object(busName, "/").CallWithContext(ctx, objectManagerIface+".GetManagedObjects", 0).Store(&objects); err != nil {
		return fmt.Errorf("failed to list GATT objects: %w", err)
	}
	reqPath, respPath, err := findCharacteristics(objects, devPath)
	if err != nil {
		return err
	}

	match := []dbus.MatchOption{
		dbus.WithMatchInterface(propertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchObjectPath(respPath),
	}
	if err := t.conn.AddMatchSignalContext(ctx, match...); err != nil {
		return fmt.Errorf("failed to subscribe to notifications: %w", err)
	}
	signals := make(chan *dbus.Signal, 16)
	t.conn.Signal(signals)

	resp := t.conn.Object(busName, respPath)
	notifying := false
	// The signal channel goes first: an undrained channel stalls the bus.
	defer func() {
		t.conn.RemoveSignal(signals)
		if notifying {
			t.stopNotify(resp)
		}
		_ = t.conn.RemoveMatchSignal(match...)
	}()

	if err := resp.CallWithContext(ctx, characteristicIface+".StartNotify", 0).Err; err != nil {
		return fmt.Errorf("failed to enable notifications: %w", err)
	}
	notifying = true

	frame, err := protocol.EncodeTCP(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	reqChar := t.conn.Object(busName, reqPath)
	writeOpts := map[string]dbus.Variant{"type": dbus.MakeVariant("request")}
	for _, part := range chunk(frame, t.WriteSize) {
		if err := reqChar.CallWithContext(ctx, characteristicIface+".WriteValue", 0, part, writeOpts).Err; err != nil {
			return fmt.Errorf("failed to write request: %w", err)
		}
	}
	logging.LogFrame(t.log, "tx", mac, frame)

	var reasm protocol.FrameReassembler
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return errors.New("bus connection closed")
			}
			value := notificationValue(sig, respPath)
			if value == nil {
				continue
			}
			logging.LogFrame(t.log, "rx", mac, value)
			msgs, err := reasm.Write(value)
			if err != nil {
				return fmt.Errorf("failed to reassemble response: %w", err)
			}
			for _, msg := range msgs {
				if !bytes.Equal(msg.Token, req.Token) {
					continue
				}
				if handle(msg) {
					return nil
				}
			}
		}
	}
}

// deliver reports the resources in a discovery reply.
func (t *Transport) deliver(ctx context.Context, mac string, msg message.Message, onFound func(*discovery.Resource)) {
	if !protocol.IsSuccess(msg.Code) {
		t.log.Debug("Discovery rejected", zap.String("host", mac), zap.Stringer("code", msg.Code))
		return
	}
	resources, err := oic.Resources(msg.Payload, Scheme+mac, discovery.ConnGATT, t.now())
	if err != nil {
		t.log.Warn("Failed to decode discovery response", zap.String("host", mac), zap.Error(err))
		return
	}
	for _, r := range resources {
		if ctx.Err() != nil {
			return
		}
		onFound(r)
	}
}

// waitResolved polls ServicesResolved until the GATT database is ready.
func (t *Transport) waitResolved(ctx context.Context, dev dbus.BusObject) error {
	ticker := time.NewTicker(resolvePoll)
	defer ticker.Stop()
	for {
		v, err := dev.GetProperty(deviceIface + ".ServicesResolved")
		if err != nil {
			return fmt.Errorf("failed to read ServicesResolved: %w", err)
		}
		if resolved, _ := v.Value().(bool); resolved {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t *Transport) stopNotify(char dbus.BusObject) {
	if err := char.Call(characteristicIface+".StopNotify", 0).Err; err != nil {
		t.log.Debug("Failed to stop notifications", zap.String("characteristic", string(char.Path())), zap.Error(err))
	}
}

func (t *Transport) teardown(dev dbus.BusObject) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := dev.CallWithContext(ctx, deviceIface+".Disconnect", 0).Err; err != nil {
		t.log.Debug("Failed to disconnect", zap.String("device", string(dev.Path())), zap.Error(err))
	}
}

// notificationValue returns the characteristic value carried by a
// PropertiesChanged signal on path, or nil.
func notificationValue(sig *dbus.Signal, path dbus.ObjectPath) []byte {
	if sig == nil || sig.Name != propertiesChanged || sig.Path != path || len(sig.Body) < 2 {
		return nil
	}
	if iface, _ := sig.Body[0].(string); iface != characteristicIface {
		return nil
	}
	changed, _ := sig.Body[1].(map[string]dbus.Variant)
	v, ok := changed["Value"]
	if !ok {
		return nil
	}
	value, _ := v.Value().([]byte)
	return value
}
