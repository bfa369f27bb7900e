// Package lightify is a client for the OSRAM Lightify gateway.
//
// The gateway listens on TCP port 4000 and speaks a small binary
// request/response protocol with little-endian framing. The client
// serialises requests on one connection, caches the lights, groups and
// scenes the gateway reports, and mirrors accepted mutations into that
// cache so callers can publish the new state without another round trip.
//
// Groups carry no state of their own on the gateway; their on/lum/temp and
// colour values are derived from member lights.
//
// # Usage
//
//	client, err := lightify.Dial(ctx, lightify.Config{Address: "192.168.1.50:4000"})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if err := client.Update(ctx); err != nil {
//	    return err
//	}
//	for _, l := range client.Lights() {
//	    _ = client.SetOnOff(ctx, l.Target(), true)
//	}
package lightify
