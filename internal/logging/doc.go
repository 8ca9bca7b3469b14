// Package logging provides structured logging for sensoroic.
//
// This package wraps a global zap logger with convenience functions for the
// logging patterns used by the discovery core, the transports and the
// WebSocket server.
//
// # Log Levels
//
//   - Debug: Detailed debugging info (CoAP frame dumps, individual resources)
//   - Info: Normal operations (phase changes, sessions, connections)
//   - Warn: Non-fatal issues (transport failures, unavailable adapters)
//   - Error: Fatal issues (startup failures)
//
// # Structured Logging
//
//	logging.Info("Session started",
//	    zap.String("session", id),
//	    zap.Bool("short_range", true),
//	)
//
// Components take a *zap.Logger and default to a named child of the global
// logger:
//
//	log := logging.Named("coordinator")
//	logging.LogPhase(log, id, "scanning", "short_range_discovery")
//
// # Configuration
//
// Logging is silent unless a level is given explicitly or through the
// SENSOROIC_LOG_LEVEL environment variable:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Output goes to stderr so that command output on stdout (tables, JSON)
// stays machine readable.
package logging
