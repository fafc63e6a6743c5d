// Package id generates and validates correlation ids.
//
// A correlation id links one client request to one queued job and one pub/sub
// channel. Ids are canonical UUIDv4 strings; callers may supply their own, in
// which case Validate enforces the canonical form so derived channel names
// stay deterministic.
package id
