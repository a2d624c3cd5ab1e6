// Package memprobe queries host and device physical memory and, when a
// distributed fabric is present, agrees on the smallest machine's
// capacity across all ranks via a MIN-reduction.
package memprobe

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/qcontroller/internal/fabric"
)

const bytesPerMB = 1024 * 1024

// Probe caches the host/device memory readings so repeated calls within
// a process don't re-query the OS or re-run the collective.
type Probe struct {
	fab fabric.Fabric
	log zerolog.Logger

	once          sync.Once
	peerAccessOnce sync.Once
	hostMB        int64
	deviceMB      int64
	err           error
}

// New builds a Probe bound to the given distributed fabric (use
// fabric.Local{} when none is available).
func New(fab fabric.Fabric, log zerolog.Logger) *Probe {
	if fab == nil {
		fab = fabric.Local{}
	}
	return &Probe{fab: fab, log: log.With().Str("component", "memprobe").Logger()}
}

// HostMemoryMB returns the physical RAM of the current machine, in MiB,
// reduced with MIN across every rank when a fabric is present.
func (p *Probe) HostMemoryMB() (int64, error) {
	p.init()
	return p.hostMB, p.err
}

// DeviceMemoryMB returns the sum, in MiB, of onboard memory across every
// visible accelerator device (0 if none), reduced with MIN across ranks.
func (p *Probe) DeviceMemoryMB() (int64, error) {
	p.init()
	return p.deviceMB, p.err
}

func (p *Probe) init() {
	p.once.Do(func() {
		p.enablePeerAccessBestEffort()

		vm, err := mem.VirtualMemory()
		if err != nil {
			p.err = err
			return
		}
		localHostMB := int64(vm.Total / bytesPerMB)
		// No accelerator enumeration is available in this environment;
		// device memory is always 0 here, matching the "0 if none" case.
		localDeviceMB := int64(0)

		p.hostMB = int64(p.fab.AllReduceMin(uint64(localHostMB)))
		p.deviceMB = int64(p.fab.AllReduceMin(uint64(localDeviceMB)))

		p.log.Debug().
			Int64("host_mb", p.hostMB).
			Int64("device_mb", p.deviceMB).
			Int("rank", p.fab.Rank()).
			Msg("memory probe resolved")
	})
}

// enablePeerAccessBestEffort would enable peer access between every
// ordered pair of distinct accelerator devices on first call. With no
// device enumeration available, this is a documented no-op; failures to
// enable peer access are always ignored regardless.
func (p *Probe) enablePeerAccessBestEffort() {
	p.peerAccessOnce.Do(func() {
		p.log.Debug().Msg("no accelerator devices visible, skipping peer access setup")
	})
}
