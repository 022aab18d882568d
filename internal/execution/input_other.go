//go:build !linux

package execution

import "os"

const canProbeInput = false

// awaitingInput is not known on this platform; settle falls back to waiting
// for the first output burst
func awaitingInput(int, *os.File) bool {
	return false
}
