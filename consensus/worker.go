package consensus

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrNoWorkers is returned when a pool is created with less than one worker.
var ErrNoWorkers = errors.New("worker pool needs at least one worker")

// workerPool runs voting rounds as independent units of work so rounds for
// unrelated vertices never serialize on each other.
type workerPool struct {
	workers int
	tasks   chan func()

	startOnce    sync.Once
	shutdownOnce sync.Once
	wg           sync.WaitGroup
	quit         chan struct{}
}

func newWorkerPool(workers int) (*workerPool, error) {
	if workers <= 0 {
		return nil, ErrNoWorkers
	}
	return &workerPool{
		workers: workers,
		tasks:   make(chan func()),
		quit:    make(chan struct{}),
	}, nil
}

func (p *workerPool) Start() {
	p.startOnce.Do(func() {
		p.wg.Add(p.workers)
		for i := 0; i < p.workers; i++ {
			go p.run()
		}
	})
}

func (p *workerPool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case task := <-p.tasks:
			if task != nil {
				task()
			}
		}
	}
}

// Submit hands a task to the pool. It is a no-op after Shutdown.
func (p *workerPool) Submit(task func()) {
	select {
	case p.tasks <- task:
	case <-p.quit:
	}
}

// Shutdown stops the workers and blocks until in-flight tasks complete.
func (p *workerPool) Shutdown() {
	p.shutdownOnce.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}
