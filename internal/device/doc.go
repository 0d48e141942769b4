// Package device provides the Device Directory for Feeder Core.
//
// The directory maps a feeder's hardware identifier (its MAC address, called
// the serial) to the internal device record, and owns the per-device
// calibration settings.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                       Device Directory                        │
//	│                                                               │
//	│  ┌──────────────────┐    ┌──────────────────┐    ┌─────────┐  │
//	│  │    Directory     │    │    Repository    │    │ serial  │  │
//	│  │  (directory.go)  │───▶│  (repository.go) │    │  .go    │  │
//	│  │                  │    │                  │    │         │  │
//	│  │ • Resolve        │    │ • SQLite queries │    │ • strip │  │
//	│  │ • ResolveOrCreate│    │ • Upsert by MAC  │    │ • upper │  │
//	│  │ • Ownership      │    │ • Settings upsert│    │ • check │  │
//	│  └──────────────────┘    └──────────────────┘    └─────────┘  │
//	└──────────────────────────────────────────────────────────────┘
//
// # Serials
//
// A serial is stored as 12 upper-case hex characters with no separators.
// "aa:11:BB:22:cc:33" and "AA11BB22CC33" are the same device. Write paths
// reject anything that does not normalise to that form with ErrInvalidSerial;
// the polling read path (Resolve) answers ErrDeviceNotFound instead, because
// a feeder mid-boot should get a quiet "no" rather than an error.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	dir := device.NewDirectory(repo, cfg.Devices, log)
//
//	dev, err := dir.Resolve(ctx, "aa:bb:cc:dd:ee:ff")
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // unknown or inactive feeder
//	}
//
// # Thread Safety
//
// Directory holds no mutable state and is safe for concurrent use.
package device
