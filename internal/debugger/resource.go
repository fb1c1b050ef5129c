package debugger

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// ResourceUsage is a CPU and resident-set-size sample of one process.
// Nothing in this module attaches it to a StepLimitExceeded failure; that
// error carries only the step count.
type ResourceUsage struct {
	CPUPercent float64
	RSSBytes   uint64
}

// Usage samples CPU and resident-set size for the process with the given
// OS pid. Nothing else in this module calls it.
func Usage(pid int32) (ResourceUsage, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return ResourceUsage{}, fmt.Errorf("debugger: process lookup: %w", err)
	}
	cpu, err := proc.CPUPercent()
	if err != nil {
		return ResourceUsage{}, fmt.Errorf("debugger: cpu percent: %w", err)
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return ResourceUsage{}, fmt.Errorf("debugger: memory info: %w", err)
	}
	return ResourceUsage{CPUPercent: cpu, RSSBytes: mem.RSS}, nil
}

// Interrupt sends SIGINT to the debugger process itself, by pid; other
// processes in its group are not signalled. Nothing else in this module
// calls it.
func (s *Session) Interrupt() error {
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	return unix.Kill(s.cmd.Process.Pid, unix.SIGINT)
}
