// Package bluez implements the short-range side of discovery on Linux
// through the BlueZ D-Bus API.
//
// Adapter scans for LE devices advertising the OIC GATT service and
// refreshes a device's service cache on request. Transport runs the
// Mynewt CoAP-over-GATT exchange: requests are written to the request
// characteristic as RFC 8323 frames and responses arrive as notifications
// on the response characteristic, possibly split across several.
//
// Both share one system bus connection:
//
//	adapter, err := bluez.Open("hci0", nil)
//	if err != nil {
//		return err
//	}
//	defer adapter.Close()
//	gatt := bluez.NewTransport(adapter, nil)
package bluez
