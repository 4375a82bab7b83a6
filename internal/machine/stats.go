package machine

import (
	"fmt"
	"io"
)

// Stats tracks the performance counters of the simulated machine. The
// kernel timestamps scheduler decisions against TotalTicks, so every code
// path that advances time must go through the interrupt controller.
type Stats struct {
	TotalTicks  int
	SystemTicks int
	UserTicks   int
	IdleTicks   int

	DiskReads  int
	DiskWrites int
}

// Dump writes a human-readable summary, printed when the machine halts.
func (s *Stats) Dump(w io.Writer) {
	fmt.Fprintf(w, "Ticks: total %d, idle %d, system %d, user %d\n",
		s.TotalTicks, s.IdleTicks, s.SystemTicks, s.UserTicks)
	fmt.Fprintf(w, "Disk I/O: reads %d, writes %d\n", s.DiskReads, s.DiskWrites)
}
