//go:build windows

package guids

import "github.com/tekert/goetw/etw"

// Pre-parsed GUIDs so the event callback compares 16 bytes instead of strings.
// https://learn.microsoft.com/en-us/windows/win32/etw/nt-kernel-logger-constants
var (
	// Kernel provider for context switches (CSwitch, opcode 36).
	// [Guid("{3d6fa8d1-fe05-11d0-9dda-00c04fd7ba7c}"), EventVersion(2)]
	ThreadKernelGUID = etw.MustParseGUID("{3d6fa8d1-fe05-11d0-9dda-00c04fd7ba7c}") // Thread V2

	// PerfInfo MOF class. SysClEnter is opcode 51, SysClExit is 52.
	// [Guid("{ce1dbfb4-137e-4da6-87b0-3f59aa102cbc}"), EventVersion(2)]
	PerfInfoKernelGUID = etw.MustParseGUID("{ce1dbfb4-137e-4da6-87b0-3f59aa102cbc}")

	// Control GUID registered by pmctrace so the session accepts its markers.
	MarkerProviderGUID = etw.MustParseGUID("{b877a9af-4155-40f2-a9ba-34bedfaf1d22}")

	// Event class of the region markers. Class.Type is the marker opcode.
	MarkerCategoryGUID = etw.MustParseGUID("{5c96d7f7-b1ea-4fbe-8655-e0431e232e53}")
)
