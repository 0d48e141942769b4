// Package influxdb records feeder telemetry in InfluxDB.
//
// Three measurements are written:
//
//   - feed_events: one point per positive feed decision, tagged by device
//     serial and schedule, with amount_grams and duration_ms fields
//   - device_logs: one point per device log entry, tagged by serial and
//     level, with a count field for rate dashboards
//   - schedule_pushes: one point per schedule sync attempt, tagged by serial
//     and whether the device accepted it
//
// InfluxDB is optional. When influxdb.enabled is false, Connect returns
// ErrDisabled and the service runs without telemetry.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteFeedEvent(influxdb.FeedEvent{Serial: "AABBCCDDEEFF", AmountGrams: 40, DurationMs: 5000, At: now})
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched per influxdb.batch_size and influxdb.flush_interval; asynchronous
// write errors are delivered to the SetOnError callback.
package influxdb
