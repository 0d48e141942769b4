// Package auth authenticates Feeder Core operators.
//
// Operators log in with a username and password (Argon2id, PHC encoded)
// and receive a short-lived HS256 JWT whose subject is their user id.
// Device ownership, not role, decides what an operator can see: every
// device-scoped request is checked against devices.owner_user_id.
//
// Feeders themselves never authenticate; they are identified by serial.
//
// Browsers cannot set headers on a WebSocket upgrade, so the live event
// stream uses single-use tickets (TicketStore) obtained with a bearer token.
package auth
