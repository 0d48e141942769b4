// Package events connects the core services to the outside world.
//
// Dispatcher listens to three sources and fans each event out to every
// configured sink:
//
//	feeding.Engine   ──FeedDecided────┐
//	push.Synchronizer ─SchedulePushed─┼──▶ MQTT, InfluxDB, WebSocket hub
//	audit.Log        ──OnLogEntry─────┘
//
// Every sink is optional and every delivery is best effort: a broker or
// InfluxDB outage is logged and never reaches the device-facing request.
//
// Ingestor is the single entry point for device log entries, shared by
// POST /logs/ingest and the feeder/+/log MQTT subscription.
package events
