package mqtt

import (
	"context"
	"fmt"
)

// Subscribe routes messages matching topic to handler and remembers the
// subscription so handleConnect can restore it after a reconnect.
//
// The panel subscribes to two patterns, both built from Topics:
//   - AllDeviceStates() ("graylogic/panel/state/+/+") to find retained
//     device topics left behind by an earlier run
//   - AllDeviceCommands() ("graylogic/panel/command/+") when commands are
//     accepted from the broker
//
// paho delivers each message on its own goroutine. A handler that panics is
// logged and the message dropped; the subscription stays in place. A
// returned error is logged at warn level with the topic.
//
//	err := client.Subscribe(client.Topics().AllDeviceCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        id, ok := client.Topics().ParseDeviceCommand(topic)
//	        if !ok {
//	            return fmt.Errorf("unexpected topic %s", topic)
//	        }
//	        return forward(id, payload)
//	    })
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	case !c.IsConnected():
		return ErrNotConnected
	}

	// Recorded before the broker acknowledges, so a reconnect racing the
	// SUBACK still restores it.
	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if err := waitToken(context.Background(), token, defaultPublishTimeout); err != nil {
		c.forget(topic)
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// Unsubscribe drops topic. Messages already in flight may still reach the
// old handler.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(topic)
	if err := waitToken(context.Background(), c.client.Unsubscribe(topic), defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, topic, err)
	}
	return nil
}

func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// SubscriptionCount returns how many topic patterns will be restored on reconnect.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription reports whether topic was subscribed verbatim. Wildcards
// are not expanded.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscriptions[topic]
	return ok
}
