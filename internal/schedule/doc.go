// Package schedule provides the Schedule Store for Feeder Core.
//
// A device owns any number of named schedules; each schedule holds a list of
// time-of-day feed items. Items are never patched individually: updating a
// schedule replaces its items wholesale inside one transaction.
//
// Times of day are held as TimeOfDay (minutes since midnight) everywhere
// inside the service and only become "HH:MM" strings at the JSON boundary.
//
// The feed-time engine and the push synchronizer both work over the same
// flattened view, Slot: every enabled item of every enabled schedule of a
// device.
package schedule
