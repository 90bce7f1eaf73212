// Package influxdb provides InfluxDB connectivity for Gray Logic Edge.
//
// It wraps the official influxdb-client-go v2 library and records every engine
// state transition as an engine_lifecycle point, giving operators a history of
// starts, failures and stops alongside their other telemetry.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteLifecycle(influxdb.Lifecycle{Engine: "Engine", State: "running", Previous: "starting"})
//
// Writes are batched according to batch_size and flush_interval; a stopped or
// failed transition flushes the batch at once. Every point carries service and
// host tags. Connection and health check errors are returned directly, write
// errors go to the SetOnError callback.
package influxdb
