// Package mqtt connects Feeder Core to an MQTT broker.
//
// The bus is optional and secondary to HTTP: devices always poll
// /feed/check, and MQTT only mirrors what happens for anything listening.
//
//	core ──feeder/{serial}/feed──────▶ broker   (feed decisions)
//	core ──feeder/{serial}/schedule──▶ broker   (retained, after a push)
//	core ◀─feeder/+/log─────────────── broker   (device log entries)
//	core ──feeder/system/status──────▶ broker   (retained, LWT)
//
// # Reconnection
//
// paho reconnects with backoff between reconnect.initial_delay and
// reconnect.max_delay. Subscriptions are tracked and restored on every
// reconnect, and the online status replaces the retained LWT.
//
// # Security
//
// Set broker.tls for anything beyond a trusted LAN. Payloads are not
// encrypted beyond the transport.
package mqtt
