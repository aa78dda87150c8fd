package pmc

import "encoding/binary"

// MaxCounters is the maximum number of hardware counters that can be
// attached to a single trace event.
const MaxCounters = 8

// Provider identifies the source of an event after GUID resolution.
type Provider uint8

const (
	ProviderUnknown Provider = iota
	ProviderMarker           // region open/close markers emitted by Session
	ProviderThread           // kernel thread provider (context switches)
	ProviderSyscall          // kernel PerfInfo provider (system call enter/exit)
)

func (p Provider) String() string {
	switch p {
	case ProviderMarker:
		return "marker"
	case ProviderThread:
		return "thread"
	case ProviderSyscall:
		return "syscall"
	default:
		return "unknown"
	}
}

// Opcodes, shared with the kernel providers' classic event types.
const (
	OpcodeMarkerOpen   uint8 = 1
	OpcodeMarkerClose  uint8 = 2
	OpcodeThreadSwitch uint8 = 36
	OpcodeSyscallEnter uint8 = 51
	OpcodeSyscallExit  uint8 = 52
)

const (
	// MarkerPayloadSize is {session key u64, region id u64}.
	MarkerPayloadSize = 16
	// SwitchPayloadSize is the CSwitch V2 layout. NewThreadId is at offset 0,
	// OldThreadId at offset 4.
	SwitchPayloadSize = 24
)

// Event is a decoded trace event as delivered to the engine. Sources may
// reuse the same Event (and its slices) between deliveries; the engine never
// retains references to Counters or Payload.
type Event struct {
	Provider  Provider
	Opcode    uint8
	CPU       uint32
	Timestamp uint64

	// Counters holds the PMC values attached to the event, in mapping order.
	Counters []uint64
	// CounterSets is the number of PMC blocks the source found on the event.
	CounterSets int

	Payload []byte
}

// EventSink consumes events in delivery order from a single goroutine.
type EventSink interface {
	HandleEvent(ev *Event)
}

// Marker is a region open/close request handed to an event source.
type Marker struct {
	Opcode   uint8
	Key      uint64
	RegionID uint64
	Thread   uint32
}

// Payload encodes the marker's user data.
func (m Marker) Payload() []byte {
	return EncodeMarker(m.Key, m.RegionID)
}

// EncodeMarker returns the little-endian marker payload.
func EncodeMarker(key, regionID uint64) []byte {
	b := make([]byte, MarkerPayloadSize)
	binary.LittleEndian.PutUint64(b[0:], key)
	binary.LittleEndian.PutUint64(b[8:], regionID)
	return b
}

// DecodeMarker parses a marker payload.
func DecodeMarker(p []byte) (key, regionID uint64, ok bool) {
	if len(p) < MarkerPayloadSize {
		return 0, 0, false
	}
	return binary.LittleEndian.Uint64(p[0:]), binary.LittleEndian.Uint64(p[8:]), true
}

// EncodeSwitch returns a thread-switch payload carrying only the thread ids.
func EncodeSwitch(newTID, oldTID uint32) []byte {
	b := make([]byte, SwitchPayloadSize)
	binary.LittleEndian.PutUint32(b[0:], newTID)
	binary.LittleEndian.PutUint32(b[4:], oldTID)
	return b
}

// DecodeSwitch parses a thread-switch payload. The payload must be exactly
// SwitchPayloadSize bytes.
func DecodeSwitch(p []byte) (newTID, oldTID uint32, ok bool) {
	if len(p) != SwitchPayloadSize {
		return 0, 0, false
	}
	return binary.LittleEndian.Uint32(p[0:]), binary.LittleEndian.Uint32(p[4:]), true
}

// SyscallEnterEvent builds a system-call enter event.
func SyscallEnterEvent(cpu uint32, ts uint64, counters []uint64) Event {
	return Event{Provider: ProviderSyscall, Opcode: OpcodeSyscallEnter, CPU: cpu, Timestamp: ts,
		Counters: counters, CounterSets: 1}
}

// SyscallExitEvent builds a system-call exit event.
func SyscallExitEvent(cpu uint32, ts uint64, counters []uint64) Event {
	return Event{Provider: ProviderSyscall, Opcode: OpcodeSyscallExit, CPU: cpu, Timestamp: ts,
		Counters: counters, CounterSets: 1}
}

// ThreadSwitchEvent builds a context-switch event from oldTID to newTID.
func ThreadSwitchEvent(cpu uint32, ts uint64, counters []uint64, oldTID, newTID uint32) Event {
	return Event{Provider: ProviderThread, Opcode: OpcodeThreadSwitch, CPU: cpu, Timestamp: ts,
		Counters: counters, CounterSets: 1, Payload: EncodeSwitch(newTID, oldTID)}
}

// MarkerEvent builds a marker event as a source would deliver it.
func MarkerEvent(m Marker, cpu uint32, ts uint64) Event {
	return Event{Provider: ProviderMarker, Opcode: m.Opcode, CPU: cpu, Timestamp: ts,
		Payload: m.Payload()}
}
