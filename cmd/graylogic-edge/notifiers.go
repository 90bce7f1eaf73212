package main

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-edge/internal/engine"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/mqtt"
)

// connectSinks connects the enabled event sinks. A sink that cannot be
// reached is logged and left out; supervision goes ahead without it.
func (e *edge) connectSinks(ctx context.Context) {
	if e.cfg.MQTT.Enabled {
		log := e.log.With("component", "mqtt")
		client, err := mqtt.Connect(e.cfg.MQTT)
		if err != nil {
			log.Warn("MQTT unavailable, lifecycle events not published", "error", err)
			e.sinkErrs["mqtt"] = err
		} else {
			client.SetLogger(log)
			client.SetOnConnect(func() { log.Info("MQTT reconnected") })
			client.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
			e.mqtt = client
			e.closers = append(e.closers, func() {
				if err := client.Close(); err != nil {
					log.Error("error closing MQTT", "error", err)
				}
			})
			log.Info("MQTT connected",
				"broker", fmt.Sprintf("%s:%d", e.cfg.MQTT.Broker.Host, e.cfg.MQTT.Broker.Port),
				"client_id", e.cfg.MQTT.Broker.ClientID,
			)
		}
	}

	if e.cfg.InfluxDB.Enabled {
		log := e.log.With("component", "influxdb")
		client, err := influxdb.Connect(ctx, e.cfg.InfluxDB)
		if err != nil {
			log.Warn("InfluxDB unavailable, lifecycle events not recorded", "error", err)
			e.sinkErrs["influxdb"] = err
		} else {
			client.SetOnError(func(err error) { log.Error("InfluxDB write error", "error", err) })
			e.influx = client
			e.closers = append(e.closers, func() {
				if err := client.Close(); err != nil {
					log.Error("error closing InfluxDB", "error", err)
				}
			})
			log.Info("InfluxDB connected", "url", e.cfg.InfluxDB.URL, "bucket", e.cfg.InfluxDB.Bucket)
		}
	}
}

// notifier fans lifecycle events out to the connected sinks.
func (e *edge) notifier() engine.Notifier {
	var sinks engine.Notifiers
	if e.mqtt != nil {
		sinks = append(sinks, &mqttNotifier{client: e.mqtt, log: e.log.With("component", "mqtt")})
	}
	if e.influx != nil {
		sinks = append(sinks, &influxNotifier{client: e.influx})
	}
	if len(sinks) == 0 {
		return nil
	}
	return sinks
}

// sinkHealth reports each enabled sink as "ok" or the reason it is not.
func (e *edge) sinkHealth(ctx context.Context) map[string]string {
	report := make(map[string]string)
	check := func(name string, connected bool, healthCheck func(context.Context) error) {
		switch {
		case e.sinkErrs[name] != nil:
			report[name] = e.sinkErrs[name].Error()
		case !connected:
			report[name] = "not connected"
		default:
			report[name] = healthText(healthCheck(ctx))
		}
	}
	if e.cfg.MQTT.Enabled {
		check("mqtt", e.mqtt != nil, func(ctx context.Context) error { return e.mqtt.HealthCheck(ctx) })
	}
	if e.cfg.InfluxDB.Enabled {
		check("influxdb", e.influx != nil, func(ctx context.Context) error { return e.influx.HealthCheck(ctx) })
	}
	return report
}

func healthText(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}

// eventPublisher is the part of the MQTT client the notifier needs.
type eventPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// mqttNotifier publishes each event retained on the engine's state topic.
type mqttNotifier struct {
	client eventPublisher
	log    *logging.Logger
}

func (n *mqttNotifier) Notify(_ context.Context, ev engine.Event) {
	topic := mqtt.Topics{}.EngineState(ev.Engine)
	if err := n.client.PublishJSON(topic, ev, true); err != nil {
		n.log.Warn("publishing lifecycle event", "topic", topic, "error", err)
	}
}

// lifecycleWriter is the part of the InfluxDB client the notifier needs.
type lifecycleWriter interface {
	WriteLifecycle(l influxdb.Lifecycle)
}

// influxNotifier records each event as an engine_lifecycle point.
type influxNotifier struct {
	client lifecycleWriter
}

func (n *influxNotifier) Notify(_ context.Context, ev engine.Event) {
	n.client.WriteLifecycle(lifecycle(ev))
}

func lifecycle(ev engine.Event) influxdb.Lifecycle {
	return influxdb.Lifecycle{
		Engine:    ev.Engine,
		State:     string(ev.State),
		Previous:  string(ev.Previous),
		PID:       ev.PID,
		Duration:  ev.Duration,
		Failed:    ev.Failed(),
		Timestamp: ev.Timestamp,
	}
}
