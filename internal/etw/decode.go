package etwmain

import (
	"unsafe"

	"pmctrace/internal/pmc"
)

// EVENT_HEADER_EXT_TYPE_PMC_COUNTERS
const extTypePMCCounters = 8

// WNODE_FLAG_TRACED_GUID
const wnodeFlagTracedGUID = 0x00020000

// extendedItem mirrors EVENT_HEADER_EXTENDED_DATA_ITEM (16 bytes).
type extendedItem struct {
	Reserved1 uint16
	ExtType   uint16
	Internal  uint16 // Linkage:1, Reserved2:15
	DataSize  uint16
	DataPtr   uint64
}

// decodePMC copies the PMC block of an event into dst and reports how many
// blocks the event carried. dst must hold pmc.MaxCounters+1 values: a block
// that is not a whole number of counters, or is wider than any mapping, is
// returned at that impossible width so the engine rejects its size.
func decodePMC(items []extendedItem, dst []uint64) ([]uint64, int) {
	var (
		block *extendedItem
		sets  int
	)
	for i := range items {
		if items[i].ExtType == extTypePMCCounters {
			block = &items[i]
			sets++
		}
	}
	if block == nil {
		return dst[:0], 0
	}

	size := int(block.DataSize)
	n := size / 8
	if size%8 != 0 || n > pmc.MaxCounters || (block.DataPtr == 0 && n > 0) {
		return dst[:pmc.MaxCounters+1], sets
	}
	if n > 0 {
		src := unsafe.Slice((*uint64)(unsafe.Pointer(uintptr(block.DataPtr))), n)
		copy(dst, src)
	}
	return dst[:n], sets
}

// userData views n bytes at p without copying.
func userData(p unsafe.Pointer, n uint16) []byte {
	if p == nil || n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(p), n)
}

// guid has the layout of GUID.
type guid struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

// eventTraceHeader mirrors EVENT_TRACE_HEADER (48 bytes) for classic
// TraceEvent calls.
type eventTraceHeader struct {
	Size        uint16
	HeaderType  uint8
	MarkerFlags uint8
	ClassType   uint8
	ClassLevel  uint8
	ClassVer    uint16
	ThreadId    uint32
	ProcessId   uint32
	TimeStamp   int64
	Guid        guid
	ClientCtx   uint32
	Flags       uint32
}

// markerRecord is the buffer handed to TraceEvent. The user data follows the
// header inline.
type markerRecord struct {
	Header   eventTraceHeader
	Key      uint64
	RegionID uint64
}

func newMarkerRecord(category guid, m pmc.Marker) markerRecord {
	return markerRecord{
		Header: eventTraceHeader{
			Size:      uint16(unsafe.Sizeof(markerRecord{})),
			ClassType: m.Opcode,
			Guid:      category,
			Flags:     wnodeFlagTracedGUID,
		},
		Key:      m.Key,
		RegionID: m.RegionID,
	}
}
