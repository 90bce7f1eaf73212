package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// CommandHandler receives a decoded remote command. Payloads that do not
// decode are logged by the client and never reach it.
type CommandHandler func(cmd Command) error

// SubscribeCommands delivers commands sent to engine's command topic. The
// subscription is restored after every reconnect.
func (c *Client) SubscribeCommands(engine string, handler CommandHandler) error {
	if handler == nil {
		return fmt.Errorf("%w: nil command handler", ErrSubscribeFailed)
	}
	topic := Topics{}.EngineCommand(engine)
	return c.subscribe(topic, byte(c.cfg.QoS), commandDecoder(handler))
}

func commandDecoder(handler CommandHandler) MessageHandler {
	return func(_ string, payload []byte) error {
		cmd, err := DecodeCommand(payload)
		if err != nil {
			return err
		}
		return handler(cmd)
	}
}

func (c *Client) subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case !c.IsConnected():
		return ErrNotConnected
	}

	if err := awaitToken(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), ErrSubscribeFailed); err != nil {
		return err
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()
	return nil
}

// awaitToken waits for a broker acknowledgement, reporting failures as kind.
func awaitToken(token pahomqtt.Token, kind error) error {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: no acknowledgement after %v", kind, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return nil
}
