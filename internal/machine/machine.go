// Package machine simulates the hardware the kernel runs on: a fixed-size
// sector disk backed by a host image file, a software interrupt controller,
// a periodic timer device, and the tick statistics that stand in for a
// real-time clock. Everything is deterministic; time only advances when the
// kernel asks it to.
package machine

const (
	// SectorSize is the number of bytes in a disk sector, the atomic unit
	// of disk I/O.
	SectorSize = 128

	// NumSectors is the total number of sectors on the simulated disk.
	NumSectors = 1024

	// DiskSize is the usable capacity of the disk in bytes.
	DiskSize = SectorSize * NumSectors
)

const (
	// SystemTick is how far the simulated clock advances each time
	// interrupts are re-enabled.
	SystemTick = 10

	// UserTick is how far the clock advances per simulated user-mode
	// instruction.
	UserTick = 1
)
