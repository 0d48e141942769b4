// Package feeding implements the feed-time decision engine.
//
// A feeder polls GET /feed/check every few seconds with its MAC address and
// its timezone offset. The engine answers one question per poll: should the
// lid open now, for how much food, and for how long.
//
// # Decision order
//
//  1. Resolve the serial to an active device (unknown: quiet "no").
//  2. Convert the poll instant to device-local wall time.
//  3. Match enabled items of all enabled schedules at local, local-1 and
//     local+1 minute (exact match wins, then -1, then +1).
//  4. Refuse if a FEED_EXECUTED entry exists inside the cooldown window.
//  5. Pick a duration: item override, device max_open_ms, configured default.
//  6. Write the FEED_EXECUTED entry.
//  7. Answer yes.
//
// Steps 4 to 6 run under a per-device lock, so two concurrent polls from
// one feeder cannot both pass the cooldown check. The engine keeps no other
// state between polls.
//
// Any storage error before step 6 fails closed: the caller gets an error and
// must answer "do not feed". A failed write in step 6 does not change a
// positive decision.
package feeding
