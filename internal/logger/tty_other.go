//go:build !linux

package logger

// isTerminal reports false off Linux; pretty output is uncolored there.
func isTerminal(uintptr) bool {
	return false
}
