// Package session owns per-connection message transport.
//
// Ownership boundary:
// - the receive/dispatch/reply loop (Handler.Run)
// - ordered, atomic outbound writes (Handler.Send)
// - dialing with retry/backoff
package session
