//go:build windows

package counters

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/blang/semver"
	"golang.org/x/sys/windows"
)

// TRACE_INFO_CLASS
const traceProfileSourceListInfo = 7

// PMC selection for kernel events arrived with Windows 10 1703.
var minPMCTraceVersion = semver.MustParse("10.0.15063")

var (
	advapi32                  = windows.NewLazySystemDLL("advapi32.dll")
	procTraceQueryInformation = advapi32.NewProc("TraceQueryInformation")
)

// profileSourceInfo mirrors PROFILE_SOURCE_INFO up to the description.
type profileSourceInfo struct {
	NextEntryOffset uint32
	Source          uint32
	MinInterval     uint32
	MaxInterval     uint32
	Reserved        uint64
}

// ETWCatalog lists the profile sources the kernel can attach to trace events.
type ETWCatalog struct{}

// NewETWCatalog fails on Windows builds without PMC tracing.
func NewETWCatalog() (Catalog, error) {
	v := windows.RtlGetVersion()
	have, err := semver.Make(fmt.Sprintf("%d.%d.%d", v.MajorVersion, v.MinorVersion, v.BuildNumber))
	if err != nil {
		return nil, fmt.Errorf("parsing OS version: %w", err)
	}
	if have.LT(minPMCTraceVersion) {
		return nil, fmt.Errorf("PMC tracing needs Windows %s or later, running %s", minPMCTraceVersion, have)
	}
	return ETWCatalog{}, nil
}

func (ETWCatalog) Name() string { return "etw" }

func (ETWCatalog) Sources() ([]Source, error) {
	buf := make([]byte, 64*1024)
	for {
		var returned uint32
		r, _, _ := procTraceQueryInformation.Call(
			0,
			traceProfileSourceListInfo,
			uintptr(unsafe.Pointer(&buf[0])),
			uintptr(len(buf)),
			uintptr(unsafe.Pointer(&returned)),
		)
		errno := windows.Errno(r)
		if errno == windows.ERROR_BAD_LENGTH || errno == windows.ERROR_INSUFFICIENT_BUFFER {
			buf = make([]byte, max(int(returned), 2*len(buf)))
			continue
		}
		if errno != windows.ERROR_SUCCESS {
			return nil, fmt.Errorf("TraceQueryInformation(TraceProfileSourceListInfo): %w", errno)
		}
		return parseProfileSources(buf[:returned])
	}
}

func parseProfileSources(buf []byte) ([]Source, error) {
	const descOffset = int(unsafe.Sizeof(profileSourceInfo{}))
	var sources []Source
	for off := 0; off+descOffset <= len(buf); {
		info := (*profileSourceInfo)(unsafe.Pointer(&buf[off]))
		end := len(buf)
		if info.NextEntryOffset != 0 {
			end = off + int(info.NextEntryOffset)
		}
		if end > len(buf) || end < off+descOffset {
			return nil, errors.New("malformed profile source list")
		}
		desc := unsafe.Slice((*uint16)(unsafe.Pointer(&buf[off+descOffset])), (end-off-descOffset)/2)
		sources = append(sources, Source{
			Name:        windows.UTF16ToString(desc),
			Index:       info.Source,
			MinInterval: info.MinInterval,
			MaxInterval: info.MaxInterval,
		})
		if info.NextEntryOffset == 0 {
			break
		}
		off = end
	}
	return sources, nil
}

// NewPerfCatalog is only available on Linux.
func NewPerfCatalog() (Catalog, error) { return nil, ErrUnsupported }

// Default returns the ETW profile source catalog.
func Default() Catalog { return ETWCatalog{} }
