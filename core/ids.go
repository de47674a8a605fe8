package core

import "github.com/google/uuid"

// NewID generates a unique identifier for events and runs.
func NewID() string { return uuid.NewString() }

// NewShortID generates a compact 8-character identifier used for packet
// message ids, run ids and call ids where full UUIDs would be noisy in logs.
func NewShortID() string { return uuid.NewString()[:8] }
