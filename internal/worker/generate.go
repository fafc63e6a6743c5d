package worker

import "strings"

// Tokens returns the simulated generation output for a job, split into
// word-level tokens. The shape mirrors a real model reply closely enough to
// exercise the full relay path.
func Tokens(query, correlationID string) []string {
	return strings.Fields(query + ": This is a simulated LLM stream. Channel ID: " + correlationID)
}
