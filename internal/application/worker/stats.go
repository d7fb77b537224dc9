package worker

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/prometheus/procfs"
)

// Stats is a point-in-time view of the worker process
type Stats struct {
	PID         int
	Goroutines  int
	HeapAlloc   uint64
	HeapObjects uint64
	NumGC       uint32
	ResidentMem int
	VirtualMem  uint
	Threads     int
	OpenFDs     int
	CPUSeconds  float64
	ProcfsErr   error
	CollectedAt time.Time
}

// collectStats gathers runtime stats and, where available, procfs stats
func collectStats() Stats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := Stats{
		PID:         os.Getpid(),
		Goroutines:  runtime.NumGoroutine(),
		HeapAlloc:   ms.HeapAlloc,
		HeapObjects: ms.HeapObjects,
		NumGC:       ms.NumGC,
		CollectedAt: time.Now(),
	}

	proc, err := procfs.Self()
	if err != nil {
		s.ProcfsErr = err
		return s
	}

	stat, err := proc.Stat()
	if err != nil {
		s.ProcfsErr = err
		return s
	}
	s.ResidentMem = stat.ResidentMemory()
	s.VirtualMem = stat.VirtualMemory()
	s.Threads = stat.NumThreads
	s.CPUSeconds = stat.CPUTime()

	if fds, err := proc.FileDescriptorsLen(); err == nil {
		s.OpenFDs = fds
	}

	return s
}

// writeStats prints process statistics and component states
func (w *Worker) writeStats(out io.Writer) error {
	s := collectStats()
	snap := w.Snapshot()

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "worker\t%s\n", w.id)
	fmt.Fprintf(tw, "pid\t%d\n", s.PID)
	fmt.Fprintf(tw, "state\t%s\n", w.state.Status())
	fmt.Fprintf(tw, "goroutines\t%d\n", s.Goroutines)
	fmt.Fprintf(tw, "heap_alloc\t%d\n", s.HeapAlloc)
	fmt.Fprintf(tw, "heap_objects\t%d\n", s.HeapObjects)
	fmt.Fprintf(tw, "gc_cycles\t%d\n", s.NumGC)

	if s.ProcfsErr == nil {
		fmt.Fprintf(tw, "rss\t%d\n", s.ResidentMem)
		fmt.Fprintf(tw, "vms\t%d\n", s.VirtualMem)
		fmt.Fprintf(tw, "threads\t%d\n", s.Threads)
		fmt.Fprintf(tw, "open_fds\t%d\n", s.OpenFDs)
		fmt.Fprintf(tw, "cpu_seconds\t%.2f\n", s.CPUSeconds)
	} else {
		fmt.Fprintf(tw, "procfs\tunavailable: %v\n", s.ProcfsErr)
	}

	for _, c := range snap.Components {
		fmt.Fprintf(tw, "%s/%s\t%s since %s\n", c.Role, c.Name, c.Status, c.Since.Format(time.RFC3339))
	}

	return tw.Flush()
}
