// Package protocol owns the auction message catalogue and its wire codec.
//
// Ownership boundary:
// - message types and payload variants
// - catalogue validation (which variant a type carries)
// - encoding messages into frames and back
package protocol
