// Package transport routes OIC discovery queries to the concrete mediums:
//
//   - coapip: CoAP over UDP, multicast to 224.0.1.187:5683 or unicast
//   - dnssd: "_oic._udp" announcements browsed over mDNS
//   - bluez: CoAP over BLE GATT through the BlueZ D-Bus API
//
// A Router implements discovery.Transport and picks mediums by their
// connectivity tags, so the coordinator never needs to know which radio
// or socket carries a query. For single resource requests (Get, Put,
// Observe) it picks the medium owning the host's scheme instead.
package transport
