// Package oic decodes OIC resource discovery payloads and classifies the
// resources found.
//
// A GET on /oic/res returns a CBOR array. OIC 1.1 servers (including
// Apache Mynewt) wrap links in device objects:
//
//	[{"di": "…", "links": [{"href": "/light/1", "rt": ["oic.r.switch.binary"],
//	  "if": ["oic.if.a"], "p": {"bm": 3}}]}]
//
// OCF 1.0 servers send the links directly, with the device in "anchor".
// DecodeLinks accepts both. "rt" and "if" may be a single string or an
// array.
//
// The sensor helpers recognise resource types published by the Mynewt
// sensor framework ("x.mynewt.snsr.*") and give them readable names.
package oic
