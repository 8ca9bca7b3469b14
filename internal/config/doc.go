// Package config provides user configuration management for sensoroic.
//
// This package manages a YAML-based configuration file that stores the
// discovery defaults used by the CLI and the server, and a record of the
// hosts seen by previous sessions. The configuration follows OS-specific
// conventions for storage location.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/sensoroic/config.yaml or $HOME/.config/sensoroic/config.yaml
//   - macOS: $HOME/.config/sensoroic/config.yaml
//   - Windows: %LOCALAPPDATA%\sensoroic\config.yaml
//
// SENSOROIC_CONFIG overrides the location.
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	opts, err := registry.DiscoveryPrefs().DiscoveryOptions()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// ... run discovery, then remember what answered
//	registry.UpdateHostLastSeen("coap+gatt://AA:BB:CC:DD:EE:FF", "gatt", 4, time.Now())
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes.
package config
