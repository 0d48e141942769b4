// Package audit provides the per-device event log of Feeder Core.
//
// The device_logs table is append-only. It serves two readers: operators
// browsing what a feeder has been doing, and the feed-time engine, which
// uses the newest FEED_EXECUTED entry of a device as its cooldown memory.
//
// Entries arrive from three writers: the engine (sentinel entries), the
// push synchronizer, and the feeders themselves (HTTP ingest or MQTT).
package audit
