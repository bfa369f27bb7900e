// Package mqtt provides MQTT client connectivity for mqtt-lightify and mqtt-archive.
//
// This package manages:
//   - Connection to the broker with auto-reconnect (delegated to paho)
//   - Last Will and Testament (LWT) registration before connecting
//   - Message publishing and topic subscriptions with wildcard support
//   - Topic name and filter validation
//
// # Session model
//
// Both binaries treat every (re)connect as a fresh clean session: they
// subscribe from the OnConnect callback, so the client does not replay
// subscriptions on its own. Message handlers run one at a time in arrival
// order.
//
// # Usage
//
//	client := mqtt.NewClient(cfg.MQTT)
//	client.SetWill("lightify/connected", []byte("0"), 0, true)
//	client.SetOnConnect(func() {
//	    client.Subscribe("lightify/#", 0, handle)
//	})
//	if err := client.Connect(); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
package mqtt
