//go:build !windows && !linux

package osthread

// CurrentID is unknown on this platform and always 0.
func CurrentID() uint32 {
	return 0
}
