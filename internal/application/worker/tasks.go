package worker

import (
	"context"
	"sort"
	"sync"
)

// task is a goroutine scheduled by the worker's control loop
type task struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Wait blocks until the task returns and reports its error
func (t *task) Wait() error {
	<-t.done
	return t.err
}

// taskGroup tracks live loop tasks so shutdown can detect strays
type taskGroup struct {
	mu   sync.Mutex
	live map[*task]struct{}
}

func newTaskGroup() *taskGroup {
	return &taskGroup{live: make(map[*task]struct{})}
}

// spawn runs fn in a new goroutine with a cancellable child of ctx
func (g *taskGroup) spawn(ctx context.Context, name string, fn func(ctx context.Context) error) *task {
	ctx, cancel := context.WithCancel(ctx)
	t := &task{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	g.mu.Lock()
	g.live[t] = struct{}{}
	g.mu.Unlock()

	go func() {
		defer func() {
			g.mu.Lock()
			delete(g.live, t)
			g.mu.Unlock()
			cancel()
			close(t.done)
		}()
		t.err = fn(ctx)
	}()

	return t
}

// pending returns the names of live tasks other than except
func (g *taskGroup) pending(except *task) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	names := make([]string, 0, len(g.live))
	for t := range g.live {
		if t != except {
			names = append(names, t.name)
		}
	}
	sort.Strings(names)
	return names
}
