package reg

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/golang/glog"
	"golang.org/x/sys/unix"
)

const MEM_FILE = "/dev/mem"

// Map is a Bus over physical memory, mapped from /dev/mem (or another file that
// exposes physical addresses at their own offset).
type Map struct {
	buf  mmap.MMap
	offs uintptr
	size int
}

// MapPhys opens file and uses mmap to map size bytes at physAddr into our address
// space. Since the mapping has to start at a page boundary, the physical address is
// rounded down to the nearest page boundary and the difference is kept as an offset.
func MapPhys(file string, physAddr uintptr, size int) (*Map, error) {
	f, err := os.OpenFile(file, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("couldn't open %s: %w", file, err)
	}
	defer f.Close() // The mapping outlives the descriptor

	pagemask := ^uintptr(unix.Getpagesize() - 1)
	mapAddr := physAddr & pagemask
	offs := physAddr - mapAddr
	glog.V(1).Infof("MapRegion(%s, %d, RDWR, 0, %08X), physAddr %08X, mask %08X", file, size+int(offs), mapAddr, physAddr, pagemask)
	mm, err := mmap.MapRegion(f, size+int(offs), mmap.RDWR, 0, int64(mapAddr))
	if err != nil {
		return nil, fmt.Errorf("couldn't map region (%08X, %v): %w", physAddr, size, err)
	}
	return &Map{buf: mm, offs: offs, size: size}, nil
}

func (m *Map) word(offset uintptr) *uint32 {
	if offset%4 != 0 || int(offset)+4 > m.size {
		panic(fmt.Sprintf("register offset %#x outside %d byte mapping", offset, m.size))
	}
	return (*uint32)(unsafe.Pointer(&m.buf[m.offs+offset]))
}

// Load reads the register with a single 32-bit access.
func (m *Map) Load(offset uintptr) uint32 {
	return atomic.LoadUint32(m.word(offset))
}

// Store writes the register with a single 32-bit access.
func (m *Map) Store(offset uintptr, val uint32) {
	atomic.StoreUint32(m.word(offset), val)
}

// Close unmaps the block. The Map must not be used afterwards.
func (m *Map) Close() error {
	if m.buf == nil {
		return nil
	}
	err := m.buf.Unmap()
	m.buf = nil
	return err
}
