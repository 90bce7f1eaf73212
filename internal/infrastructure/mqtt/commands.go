package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Engine command actions accepted on the command topic.
const (
	ActionReload = "reload"
	ActionStop   = "stop"
)

// Command is a remote request for the supervisor.
//
//	{"action":"reload","request_id":"abc"}
type Command struct {
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
}

// DecodeCommand parses and validates a command payload.
func DecodeCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	cmd.Action = strings.ToLower(strings.TrimSpace(cmd.Action))
	switch cmd.Action {
	case ActionReload, ActionStop:
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, cmd.Action)
	}
}
