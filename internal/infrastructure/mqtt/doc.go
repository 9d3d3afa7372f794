// Package mqtt connects the panel to a local MQTT broker.
//
// The broker is optional. When enabled, the panel mirrors its live device
// snapshot onto retained topics so that local automation controllers can
// read device state without talking to the cloud backend, and can
// optionally accept switch commands on a command topic.
//
// This package manages:
//   - Connection with auto-reconnect and exponential backoff
//   - Publishing with QoS and retained-message support
//   - Subscriptions that are restored after every reconnect
//   - A retained availability topic backed by Last Will and Testament
//
// # Topic layout
//
// See [Topics]. All topics live under a configurable prefix
// (default "graylogic/panel").
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}
//	err = client.PublishRetained(topics.DeviceState("hub-1", "plug-1"), payload)
package mqtt
