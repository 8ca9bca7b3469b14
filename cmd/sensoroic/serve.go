package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sensoroic/sensoroic/internal/config"
	"github.com/sensoroic/sensoroic/internal/server"
	"github.com/sensoroic/sensoroic/internal/ui"
)

// Serve command flags
var (
	serveHost string
	servePort int
	certPath  string
	keyPath   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve discovery sessions over WebSocket",
	Long: `Start a server that runs discovery sessions for WebSocket clients.

Clients connect to /ws and send {"type":"discover","options":{...}}; the
server streams progress events followed by one completed or failed event.
{"type":"cancel"} stops the running session. GET /healthz reports status.

Session defaults come from the configuration file. TLS is enabled when
--cert and --key are given.`,
	Example: `  # Listen on all interfaces, port 8080
  sensoroic serve

  # Local only with debug logging
  sensoroic serve --host 127.0.0.1 --log-level debug

  # With TLS
  sensoroic serve --port 8443 --cert fullchain.pem --key privkey.pem`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen address (empty = all interfaces)")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Listen port")
	serveCmd.Flags().StringVar(&certPath, "cert", "", "Path to TLS certificate file")
	serveCmd.Flags().StringVar(&keyPath, "key", "", "Path to TLS private key file")
}

func runServe(cmd *cobra.Command, args []string) error {
	if (certPath == "") != (keyPath == "") {
		return fmt.Errorf("both --cert and --key must be provided together, or neither")
	}
	for _, path := range []string{certPath, keyPath} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", path)
		}
	}

	reg, err := config.LoadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	prefs := reg.DiscoveryPrefs()
	defaults, err := prefs.DiscoveryOptions()
	if err != nil {
		return err
	}

	s := newStack(prefs)
	defer s.Close()

	level := logLevel
	if level == "" {
		level = "info"
	}
	srv, err := server.New(&server.Config{
		Host:     serveHost,
		Port:     servePort,
		CertPath: certPath,
		KeyPath:  keyPath,
		LogLevel: level,
		Defaults: defaults,
	}, s.coordinator)
	p := ui.NewPrinter(cmd.OutOrStdout())
	if err != nil {
		p.PrintError("Server failed to start", err, []string{
			"Check the certificate and key are a matching PEM pair",
			"Run with --log-level debug for details",
		})
		return fmt.Errorf("failed to create server: %w", err)
	}

	tlsState := "off"
	if certPath != "" {
		tlsState = "on"
	}
	p.PrintHeader("Discovery Server", "sensoroic serve", map[string]string{
		"Listen":     fmt.Sprintf("%s:%d", serveHost, servePort),
		"TLS":        tlsState,
		"Transports": s.router.Connectivity().String(),
	})
	p.Newline()

	return srv.Start()
}
