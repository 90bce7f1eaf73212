// Package mqtt provides MQTT connectivity for Gray Logic Edge.
//
// The supervisor uses the broker for two things:
//   - publishing engine lifecycle events, retained, on graylogic/edge/{engine}/state
//   - receiving remote commands ({"action":"reload"} or {"action":"stop"}) on
//     graylogic/edge/{engine}/command while `start --wait` is running
//
// The connection carries a Last Will on graylogic/edge/system/status so that
// subscribers see the supervisor go offline if it dies.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.EngineState("Engine"), event, true)
//	err = client.SubscribeCommands("Engine", func(cmd mqtt.Command) error {
//	    ...
//	})
package mqtt
