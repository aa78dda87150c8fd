//go:build windows

package etwmain

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/tekert/goetw/etw"
	"golang.org/x/sys/windows"

	"pmctrace/internal/etw/guids"
)

// goetw manages providers and filters for ordinary sessions but has no call
// for PMC source selection, so the PMC session is driven through advapi32
// directly and only consumed with goetw.
var (
	advapi32                 = windows.NewLazySystemDLL("advapi32.dll")
	procStartTraceW          = advapi32.NewProc("StartTraceW")
	procControlTraceW        = advapi32.NewProc("ControlTraceW")
	procTraceSetInformation  = advapi32.NewProc("TraceSetInformation")
	procRegisterTraceGuidsW  = advapi32.NewProc("RegisterTraceGuidsW")
	procUnregisterTraceGuids = advapi32.NewProc("UnregisterTraceGuids")
	procTraceEvent           = advapi32.NewProc("TraceEvent")
)

const (
	wnodeFlagVersionedProperties = 0x00800000

	eventTraceRealTimeMode     = 0x00000100
	eventTraceSystemLoggerMode = 0x02000000

	eventTraceFlagCSwitch      = 0x00000010
	eventTraceFlagSystemCall   = 0x00000080
	eventTraceFlagNoSysConfig  = 0x10000000
	eventTraceControlQuery     = 0
	eventTraceControlStop      = 1
	clientContextCPUCycles     = 3
	traceVersionedProperties   = 2
	tracePmcEventListInfo      = 8
	tracePmcCounterListInfo    = 9
	errorWMIInstanceNotFound   = windows.Errno(4201)
	maxSessionNameLength       = 1024
)

type wnodeHeader struct {
	BufferSize        uint32
	ProviderId        uint32
	HistoricalContext uint64
	TimeStamp         int64
	Guid              guid
	ClientContext     uint32
	Flags             uint32
}

// eventTraceProperties mirrors EVENT_TRACE_PROPERTIES_V2.
type eventTraceProperties struct {
	Wnode               wnodeHeader
	BufferSize          uint32
	MinimumBuffers      uint32
	MaximumBuffers      uint32
	MaximumFileSize     uint32
	LogFileMode         uint32
	FlushTimer          uint32
	EnableFlags         uint32
	AgeLimit            int32
	NumberOfBuffers     uint32
	FreeBuffers         uint32
	EventsLost          uint32
	BuffersWritten      uint32
	LogBuffersLost      uint32
	RealTimeBuffersLost uint32
	LoggerThreadId      windows.Handle
	LogFileNameOffset   uint32
	LoggerNameOffset    uint32
	VersionNumber       uint32
	FilterDescCount     uint32
	FilterDesc          uintptr
	V2Options           uint64
}

// traceBuffer is the properties block plus the trailing logger name the API
// writes back into.
type traceBuffer struct {
	Props eventTraceProperties
	Name  [maxSessionNameLength]uint16
}

// classicEventID mirrors CLASSIC_EVENT_ID.
type classicEventID struct {
	EventGuid guid
	Type      uint8
	Reserved  [7]uint8
}

// traceGUIDRegistration mirrors TRACE_GUID_REGISTRATION.
type traceGUIDRegistration struct {
	Guid      *guid
	RegHandle windows.Handle
}

func toGUID(g *etw.GUID) guid {
	return *(*guid)(unsafe.Pointer(g))
}

// reset fills the buffer for a PMC-capable system logger session. The API
// overwrites fields on every call, so this runs before each one.
func (b *traceBuffer) reset() {
	*b = traceBuffer{}
	b.Props.Wnode.BufferSize = uint32(unsafe.Sizeof(*b))
	b.Props.Wnode.ClientContext = clientContextCPUCycles
	b.Props.Wnode.Flags = wnodeFlagTracedGUID | wnodeFlagVersionedProperties
	b.Props.LogFileMode = eventTraceRealTimeMode | eventTraceSystemLoggerMode
	b.Props.VersionNumber = traceVersionedProperties
	b.Props.EnableFlags = eventTraceFlagCSwitch | eventTraceFlagNoSysConfig | eventTraceFlagSystemCall
	b.Props.LoggerNameOffset = uint32(unsafe.Offsetof(b.Name))
}

func callErr(op string, r uintptr) error {
	if errno := windows.Errno(r); errno != windows.ERROR_SUCCESS {
		return fmt.Errorf("%s: %w", op, errno)
	}
	return nil
}

// stopTrace stops the named session. A session that does not exist is not
// an error.
func stopTrace(name *uint16, buf *traceBuffer) error {
	buf.reset()
	r, _, _ := procControlTraceW.Call(0, uintptr(unsafe.Pointer(name)),
		uintptr(unsafe.Pointer(&buf.Props)), eventTraceControlStop)
	if errno := windows.Errno(r); errno == errorWMIInstanceNotFound {
		return nil
	}
	return callErr("ControlTraceW(STOP)", r)
}

// queryTrace fills buf with the live counters of the named session.
func queryTrace(name *uint16, buf *traceBuffer) error {
	buf.reset()
	r, _, _ := procControlTraceW.Call(0, uintptr(unsafe.Pointer(name)),
		uintptr(unsafe.Pointer(&buf.Props)), eventTraceControlQuery)
	return callErr("ControlTraceW(QUERY)", r)
}

// startTrace stops any session left behind under name and starts a new one.
func startTrace(name *uint16, buf *traceBuffer) (uint64, error) {
	if err := stopTrace(name, buf); err != nil {
		return 0, err
	}
	buf.reset()
	var handle uint64
	r, _, _ := procStartTraceW.Call(uintptr(unsafe.Pointer(&handle)), uintptr(unsafe.Pointer(name)),
		uintptr(unsafe.Pointer(&buf.Props)))
	if err := callErr("StartTraceW", r); err != nil {
		return 0, err
	}
	return handle, nil
}

// selectPMCSources attaches the mapped counters to CSwitch and system call
// enter/exit events.
func selectPMCSources(handle uint64, sources []uint32) error {
	if len(sources) == 0 {
		return errors.New("no PMC sources selected")
	}
	r, _, _ := procTraceSetInformation.Call(uintptr(handle), tracePmcCounterListInfo,
		uintptr(unsafe.Pointer(&sources[0])), uintptr(len(sources)*4))
	if err := callErr("TraceSetInformation(TracePmcCounterListInfo)", r); err != nil {
		return err
	}

	events := []classicEventID{
		{EventGuid: toGUID(guids.ThreadKernelGUID), Type: 36},
		{EventGuid: toGUID(guids.PerfInfoKernelGUID), Type: 51},
		{EventGuid: toGUID(guids.PerfInfoKernelGUID), Type: 52},
	}
	r, _, _ = procTraceSetInformation.Call(uintptr(handle), tracePmcEventListInfo,
		uintptr(unsafe.Pointer(&events[0])), uintptr(len(events))*unsafe.Sizeof(events[0]))
	return callErr("TraceSetInformation(TracePmcEventListInfo)", r)
}

var controlCallback = windows.NewCallback(func(requestCode, context, bufferSize, buffer uintptr) uintptr {
	return uintptr(windows.ERROR_SUCCESS)
})

// registerMarkerProvider registers the marker control GUID with its single
// event class.
func registerMarkerProvider() (uint64, error) {
	provider := toGUID(guids.MarkerProviderGUID)
	category := toGUID(guids.MarkerCategoryGUID)
	reg := traceGUIDRegistration{Guid: &category}
	var handle uint64
	r, _, _ := procRegisterTraceGuidsW.Call(controlCallback, 0,
		uintptr(unsafe.Pointer(&provider)), 1, uintptr(unsafe.Pointer(&reg)),
		0, 0, uintptr(unsafe.Pointer(&handle)))
	if err := callErr("RegisterTraceGuidsW", r); err != nil {
		return 0, err
	}
	return handle, nil
}

func unregisterMarkerProvider(handle uint64) error {
	r, _, _ := procUnregisterTraceGuids.Call(uintptr(handle))
	return callErr("UnregisterTraceGuids", r)
}

// traceEvent writes a classic event into the session. The kernel stamps the
// processor, thread and cycle count.
func traceEvent(handle uint64, rec *markerRecord) error {
	r, _, _ := procTraceEvent.Call(uintptr(handle), uintptr(unsafe.Pointer(rec)))
	return callErr("TraceEvent", r)
}
