package mqtt

import (
	"encoding/json"
	"fmt"
)

// Engine events are small; anything larger is a bug.
const maxPayloadSize = 64 << 10

// PublishJSON encodes v and publishes it with the configured QoS. State
// topics are published retained so late subscribers see the current state;
// commands must not be.
func (c *Client) PublishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %w", ErrPublishFailed, err)
	}
	return c.publish(topic, payload, byte(c.cfg.QoS), retained)
}

func (c *Client) publish(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: %d byte payload over the %d byte limit", ErrPublishFailed, len(payload), maxPayloadSize)
	case !c.IsConnected():
		return ErrNotConnected
	}
	return awaitToken(c.client.Publish(topic, qos, retained, payload), ErrPublishFailed)
}
