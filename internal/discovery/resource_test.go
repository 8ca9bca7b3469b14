package discovery

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestUniqueID(t *testing.T) {
	r := &Resource{Host: "coap+gatt://AA:BB:CC:DD:EE:FF", Path: "/light/1"}
	if got, want := r.UniqueID(), "coap+gatt://AA:BB:CC:DD:EE:FF/light/1"; got != want {
		t.Errorf("UniqueID() = %q, want %q", got, want)
	}
}

func TestConnectivityString(t *testing.T) {
	tests := []struct {
		in   ConnectivityType
		want string
	}{
		{0, "none"},
		{ConnIP, "ip"},
		{ConnGATT, "gatt"},
		{ConnIP | ConnDNSSD, "ip|dnssd"},
		{ConnIP | ConnIPv6, "ip|ipv6"},
	}

	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("ConnectivityType(%d).String() = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseConnectivity(t *testing.T) {
	tests := []struct {
		in      string
		want    ConnectivityType
		wantErr bool
	}{
		{in: "ip", want: ConnIP},
		{in: "GATT", want: ConnGATT},
		{in: "ip|dnssd", want: ConnIP | ConnDNSSD},
		{in: "ip, gatt", want: ConnIP | ConnGATT},
		{in: "", want: 0},
		{in: "zigbee", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseConnectivity(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseConnectivity(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseConnectivity(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConnectivityHas(t *testing.T) {
	c := ConnIP | ConnDNSSD
	if !c.Has(ConnIP) {
		t.Error("Has(ConnIP) = false, want true")
	}
	if c.Has(ConnGATT) {
		t.Error("Has(ConnGATT) = true, want false")
	}
	if c.Has(0) {
		t.Error("Has(0) = true, want false")
	}
	if !Multicast.Intersects(c) {
		t.Error("Multicast.Intersects(ip|dnssd) = false, want true")
	}
	if ShortRange.Intersects(c) {
		t.Error("ShortRange.Intersects(ip|dnssd) = true, want false")
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Options)
		wantErr string
	}{
		{name: "defaults", modify: func(o *Options) {}},
		{name: "both disabled", modify: func(o *Options) {
			o.EnableShortRange = false
			o.EnableMulticast = false
			o.Query = ""
		}},
		{name: "whitelist without scan duration", modify: func(o *Options) {
			o.Whitelist = []string{whitelistHost}
			o.ScanDuration = 0
		}},
		{name: "zero per-host", modify: func(o *Options) { o.PerHostTimeout = 0 }, wantErr: "per-host timeout"},
		{name: "negative grace", modify: func(o *Options) { o.Grace = -time.Second }, wantErr: "grace"},
		{name: "zero scan", modify: func(o *Options) { o.ScanDuration = 0 }, wantErr: "scan duration"},
		{name: "zero multicast", modify: func(o *Options) { o.MulticastTimeout = 0 }, wantErr: "multicast timeout"},
		{name: "empty whitelist entry", modify: func(o *Options) { o.Whitelist = []string{" "} }, wantErr: "whitelist entry 0"},
		{name: "relative query", modify: func(o *Options) { o.Query = "oic/res" }, wantErr: "absolute path"},
		{name: "short range off ignores its timers", modify: func(o *Options) {
			o.EnableShortRange = false
			o.PerHostTimeout = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.modify(&o)
			err := o.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidOptions) {
				t.Fatalf("Validate() = %v, want ErrInvalidOptions", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	if o.ServiceUUID != uuid.MustParse("ade3d529-c784-4f63-a987-eb69f70ee816") {
		t.Errorf("ServiceUUID = %v", o.ServiceUUID)
	}
	if o.Query != "/oic/res" {
		t.Errorf("Query = %q, want %q", o.Query, "/oic/res")
	}
	if !o.EnableShortRange || !o.EnableMulticast {
		t.Error("both mediums should be enabled by default")
	}
}
