package kernel

import "fmt"

// The system-call surface. User programs reach these through the
// exception dispatch glue; the contracts are small on purpose: booleans
// become 1/0, missing things become 0 or -1.

// SysHalt stops the machine.
func (k *Kernel) SysHalt() {
	k.Halt()
}

// SysAdd returns op1 + op2; the canonical smoke-test syscall.
func (k *Kernel) SysAdd(op1, op2 int) int {
	return op1 + op2
}

// SysCreate makes a regular file of the given size. Returns 1 on
// success, 0 on failure; directories are a kernel-side affair.
func (k *Kernel) SysCreate(name string, size int) int {
	if k.FileSystem.Create(name, size, false) {
		return 1
	}
	return 0
}

// SysOpen opens a file and grants a descriptor id. Returns an id > 0, or
// 0 when the file is missing or the descriptor table is full.
func (k *Kernel) SysOpen(name string) int {
	of := k.FileSystem.Open(name)
	if of == nil {
		return 0
	}
	return k.FileSystem.PutFileDescriptor(of)
}

// SysRead reads up to len(buf) bytes from descriptor id; -1 on a bad id.
func (k *Kernel) SysRead(buf []byte, id int) int {
	return k.FileSystem.Read(buf, id)
}

// SysWrite writes up to len(buf) bytes to descriptor id; -1 on a bad id.
func (k *Kernel) SysWrite(buf []byte, id int) int {
	return k.FileSystem.Write(buf, id)
}

// SysClose releases descriptor id; 1 on success, -1 on a bad id.
func (k *Kernel) SysClose(id int) int {
	return k.FileSystem.Close(id)
}

// SysYield gives up the CPU voluntarily.
func (k *Kernel) SysYield() {
	k.Scheduler.Current().Yield()
}

// SysPrintInt writes n to the console.
func (k *Kernel) SysPrintInt(n int) {
	fmt.Fprintln(k.console, n)
}
