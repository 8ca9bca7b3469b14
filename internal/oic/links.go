package oic

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/sensoroic/sensoroic/internal/discovery"
)

// Policy bitmap flags
const (
	PolicyDiscoverable = 0x01
	PolicyObservable   = 0x02
)

// StringList decodes a CBOR text string or an array of text strings. A
// single string may hold several space-separated values.
type StringList []string

// UnmarshalCBOR implements cbor.Unmarshaler.
func (s *StringList) UnmarshalCBOR(data []byte) error {
	var one string
	if err := cbor.Unmarshal(data, &one); err == nil {
		*s = strings.Fields(one)
		return nil
	}
	var many []string
	if err := cbor.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or string array: %w", err)
	}
	*s = many
	return nil
}

// Policy is the "p" member of a link.
type Policy struct {
	Bitmap uint8  `cbor:"bm"`
	Secure bool   `cbor:"sec,omitempty"`
	Port   uint16 `cbor:"port,omitempty"`
}

// Link is one entry of a /oic/res response.
type Link struct {
	Href          string     `cbor:"href"`
	Anchor        string     `cbor:"anchor,omitempty"`
	ResourceTypes StringList `cbor:"rt"`
	Interfaces    StringList `cbor:"if"`
	Policy        Policy     `cbor:"p"`

	// DeviceID is taken from the enclosing device object (OIC 1.1) or the
	// anchor (OCF 1.0). It is not encoded on the link itself.
	DeviceID string `cbor:"-"`
}

// Observable reports whether the link policy allows observation.
func (l Link) Observable() bool {
	return l.Policy.Bitmap&PolicyObservable != 0
}

// Discoverable reports whether the link policy marks it discoverable.
func (l Link) Discoverable() bool {
	return l.Policy.Bitmap&PolicyDiscoverable != 0
}

// Resource converts the link into a discovery result for host.
func (l Link) Resource(host string, ct discovery.ConnectivityType, at time.Time) *discovery.Resource {
	path := l.Href
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &discovery.Resource{
		Host:          host,
		Path:          path,
		ResourceTypes: append([]string(nil), l.ResourceTypes...),
		Interfaces:    append([]string(nil), l.Interfaces...),
		Connectivity:  ct,
		Observable:    l.Observable(),
		DiscoveredAt:  at,
	}
}

// Device is the OIC 1.1 device wrapper around a link list.
type Device struct {
	ID    string `cbor:"di"`
	Links []Link `cbor:"links"`
}

// DecodeLinks decodes a CBOR /oic/res payload. Both the OIC 1.1 form, an
// array of device objects each holding "links", and the OCF 1.0 flat link
// array are accepted, and may be mixed.
func DecodeLinks(payload []byte) ([]Link, error) {
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}

	var items []cbor.RawMessage
	if err := cbor.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("failed to decode resource list: %w", err)
	}

	var links []Link
	for i, raw := range items {
		var fields map[string]cbor.RawMessage
		if err := cbor.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("failed to decode entry %d: %w", i, err)
		}

		if rawLinks, ok := fields["links"]; ok {
			di := ""
			if rawDI, ok := fields["di"]; ok {
				di = decodeDeviceID(rawDI)
			}
			var devLinks []Link
			if err := cbor.Unmarshal(rawLinks, &devLinks); err != nil {
				return nil, fmt.Errorf("failed to decode links of entry %d: %w", i, err)
			}
			for _, l := range devLinks {
				l.DeviceID = di
				links = append(links, l)
			}
			continue
		}

		if _, ok := fields["href"]; !ok {
			return nil, fmt.Errorf("entry %d is neither a device nor a link", i)
		}
		var l Link
		if err := cbor.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("failed to decode link %d: %w", i, err)
		}
		l.DeviceID = strings.TrimSuffix(strings.TrimPrefix(l.Anchor, "ocf://"), "/")
		links = append(links, l)
	}
	return links, nil
}

// decodeDeviceID accepts a text device ID or a 16-byte binary UUID.
func decodeDeviceID(raw cbor.RawMessage) string {
	var v interface{}
	if err := cbor.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch di := v.(type) {
	case string:
		return di
	case []byte:
		if id, err := uuid.FromBytes(di); err == nil {
			return id.String()
		}
		return fmt.Sprintf("%x", di)
	default:
		return fmt.Sprint(di)
	}
}

// EncodeLinks encodes links in the OIC 1.1 device-wrapped form. Servers
// and tests use it to answer discovery queries.
func EncodeLinks(deviceID string, links []Link) ([]byte, error) {
	data, err := cbor.Marshal([]Device{{ID: deviceID, Links: links}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode links: %w", err)
	}
	return data, nil
}

// Resources decodes payload and converts every link for host.
func Resources(payload []byte, host string, ct discovery.ConnectivityType, at time.Time) ([]*discovery.Resource, error) {
	links, err := DecodeLinks(payload)
	if err != nil {
		return nil, err
	}
	out := make([]*discovery.Resource, 0, len(links))
	for _, l := range links {
		out = append(out, l.Resource(host, ct, at))
	}
	return out, nil
}
