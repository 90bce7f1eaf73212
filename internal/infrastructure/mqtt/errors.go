package mqtt

import "errors"

var (
	// ErrNotConnected means the broker link is down; events are not queued.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrConnectionFailed wraps the cause of a failed initial connect.
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	// ErrPublishFailed covers encoding, size and broker rejections of a publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when the command subscription cannot be set up.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	ErrInvalidQoS   = errors.New("mqtt: QoS must be 0, 1 or 2")
	ErrInvalidTopic = errors.New("mqtt: empty topic")

	// ErrInvalidCommand is returned for a command payload that cannot be acted on.
	ErrInvalidCommand = errors.New("mqtt: invalid command")
)
