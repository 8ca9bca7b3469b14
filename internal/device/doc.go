// Package device reads, observes and switches single OIC resources once
// discovery has found them.
//
// A Client works on top of any Requester; transport.Router is the usual
// one, picking CoAP over UDP or over GATT from the host's scheme.
//
//	c := device.New(router)
//	err := c.Observe(ctx, "coap+gatt://C0:FA:AC:CF:FA:0A", "/bme280_0/tmp",
//	    func(rep oic.Representation) { fmt.Println(rep) })
//
// Observe fails with ErrNoResponse when no notification arrives within
// FirstNotificationTimeout.
package device
