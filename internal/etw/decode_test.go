package etwmain

import (
	"runtime"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmctrace/internal/pmc"
)

func pmcItem(values []uint64) extendedItem {
	it := extendedItem{ExtType: extTypePMCCounters, DataSize: uint16(len(values) * 8)}
	if len(values) > 0 {
		it.DataPtr = uint64(uintptr(unsafe.Pointer(&values[0])))
	}
	return it
}

func TestDecodePMC(t *testing.T) {
	values := []uint64{1200, 34}
	other := []uint64{99}
	dst := make([]uint64, pmc.MaxCounters+1)

	tests := []struct {
		name  string
		items []extendedItem
		want  []uint64
		sets  int
	}{
		{"no extended data", nil, []uint64{}, 0},
		{"single block", []extendedItem{pmcItem(values)}, []uint64{1200, 34}, 1},
		{"other items ignored", []extendedItem{{ExtType: 1, DataSize: 16}, pmcItem(values), {ExtType: 5}}, []uint64{1200, 34}, 1},
		{"two blocks", []extendedItem{pmcItem(other), pmcItem(values)}, []uint64{1200, 34}, 2},
		{"empty block", []extendedItem{pmcItem(nil)}, []uint64{}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, sets := decodePMC(tt.items, dst)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.sets, sets)
		})
	}
	runtime.KeepAlive(values)
	runtime.KeepAlive(other)
}

func TestDecodePMCRejectsUnusableBlocks(t *testing.T) {
	values := make([]uint64, pmc.MaxCounters+2)
	dst := make([]uint64, pmc.MaxCounters+1)

	ragged := pmcItem(values[:2])
	ragged.DataSize = 12
	got, sets := decodePMC([]extendedItem{ragged}, dst)
	assert.Len(t, got, pmc.MaxCounters+1)
	assert.Equal(t, 1, sets)

	got, _ = decodePMC([]extendedItem{pmcItem(values)}, dst)
	assert.Len(t, got, pmc.MaxCounters+1)

	got, _ = decodePMC([]extendedItem{{ExtType: extTypePMCCounters, DataSize: 16}}, dst)
	assert.Len(t, got, pmc.MaxCounters+1)
	runtime.KeepAlive(values)
}

func TestMarkerRecordLayout(t *testing.T) {
	require.EqualValues(t, 48, unsafe.Sizeof(eventTraceHeader{}))
	require.EqualValues(t, 64, unsafe.Sizeof(markerRecord{}))
	assert.EqualValues(t, 24, unsafe.Offsetof(eventTraceHeader{}.Guid))
	assert.EqualValues(t, 44, unsafe.Offsetof(eventTraceHeader{}.Flags))
	assert.EqualValues(t, 16, unsafe.Sizeof(extendedItem{}))

	category := guid{Data1: 0x5c96d7f7, Data2: 0xb1ea, Data3: 0x4fbe}
	rec := newMarkerRecord(category, pmc.Marker{Opcode: pmc.OpcodeMarkerClose, Key: 0xfeed, RegionID: 7})
	assert.EqualValues(t, 64, rec.Header.Size)
	assert.Equal(t, pmc.OpcodeMarkerClose, rec.Header.ClassType)
	assert.EqualValues(t, wnodeFlagTracedGUID, rec.Header.Flags)
	assert.Equal(t, category, rec.Header.Guid)

	payload := unsafe.Slice((*byte)(unsafe.Pointer(&rec.Key)), pmc.MarkerPayloadSize)
	key, region, ok := pmc.DecodeMarker(payload)
	require.True(t, ok)
	assert.EqualValues(t, 0xfeed, key)
	assert.EqualValues(t, 7, region)
}

func TestUserData(t *testing.T) {
	assert.Nil(t, userData(nil, 4))
	b := []byte{1, 2, 3}
	assert.Nil(t, userData(unsafe.Pointer(&b[0]), 0))
	assert.Equal(t, []byte{1, 2}, userData(unsafe.Pointer(&b[0]), 2))
}
