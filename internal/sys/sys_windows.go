//go:build windows

package sys

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// MMap maps length bytes of file read/write and shared.
func MMap(file *os.File, length int64) ([]byte, error) {
	hmap, err := windows.CreateFileMapping(
		windows.Handle(file.Fd()),
		nil,
		windows.PAGE_READWRITE,
		uint32(uint64(length)>>32),
		uint32(length),
		nil,
	)
	if err != nil {
		return nil, err
	}

	addr, err := windows.MapViewOfFile(
		hmap,
		windows.FILE_MAP_READ|windows.FILE_MAP_WRITE,
		0, 0,
		uintptr(length),
	)
	// Windows keeps the mapping alive until all views are unmapped.
	windows.CloseHandle(hmap)
	if err != nil {
		return nil, err
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), length), nil
}

// Unmap releases a mapping returned by MMap.
func Unmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&data[0])))
}

// Remap resizes a mapping. The old mapping is released even on error.
func Remap(file *os.File, newLength int64, old []byte) ([]byte, error) {
	if err := Unmap(old); err != nil {
		return nil, err
	}
	return MMap(file, newLength)
}

// PageSize returns the system memory page size.
func PageSize() int {
	var si systemInfo
	getSystemInfo.Call(uintptr(unsafe.Pointer(&si)))
	if si.pageSize == 0 {
		return 4096
	}
	return int(si.pageSize)
}

type systemInfo struct {
	processorArchitecture     uint16
	reserved                  uint16
	pageSize                  uint32
	minimumApplicationAddress uintptr
	maximumApplicationAddress uintptr
	activeProcessorMask       uintptr
	numberOfProcessors        uint32
	processorType             uint32
	allocationGranularity     uint32
	processorLevel            uint16
	processorRevision         uint16
}

var getSystemInfo = windows.NewLazySystemDLL("kernel32").NewProc("GetSystemInfo")
