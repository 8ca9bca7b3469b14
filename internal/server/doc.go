// Package server exposes discovery sessions over WebSocket.
//
// Clients connect to /ws and exchange JSON messages. A discover request
// starts a session, optionally overriding the server's defaults:
//
//	{"type":"discover","options":{"whitelist":["AA:BB:CC:DD:EE:FF"],"per_host_timeout":"5s"}}
//
// The server streams one progress event per phase transition, then
// exactly one terminal event:
//
//	{"type":"progress","session":"…","phase":"short_range_discovery","progress":{"label":"Discovering Bluetooth LE devices","host":"AA:BB:CC:DD:EE:FF","resources":0}}
//	{"type":"completed","session":"…","phase":"done","resources":[…]}
//	{"type":"failed","session":"…"}
//
// {"type":"cancel"} cancels the running session; its terminal event is
// still delivered. A connection runs one session at a time, and closing
// the connection cancels it.
//
// /healthz reports liveness and the number of open connections.
//
// # Usage Example
//
//	srv, err := server.New(&server.Config{Port: 8080, Defaults: discovery.DefaultOptions()}, coordinator)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Start(); err != nil { // blocks until SIGINT/SIGTERM
//	    log.Fatal(err)
//	}
package server
