package recognize

import (
	"ui-recognizer/internal/feature"
)

// levelTask pairs a pyramid level's extraction work with its result
// channel. The channel is buffered so an abandoned task never blocks a
// worker.
type levelTask struct {
	run func() []feature.Vector
	out chan []feature.Vector
}

// levelPool is a fixed set of long-lived workers for per-level feature
// extraction. Workers persist across detection calls, so a call pays no
// goroutine startup cost.
type levelPool struct {
	tasks chan levelTask
}

func newLevelPool(workers int) *levelPool {
	p := &levelPool{tasks: make(chan levelTask, 16)}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *levelPool) worker() {
	for task := range p.tasks {
		task.out <- task.run()
	}
}

// submit queues one extraction and returns the channel its result arrives
// on. Callers that stop waiting may simply drop the channel.
func (p *levelPool) submit(run func() []feature.Vector) <-chan []feature.Vector {
	out := make(chan []feature.Vector, 1)
	p.tasks <- levelTask{run: run, out: out}
	return out
}

// close stops the workers once queued tasks drain.
func (p *levelPool) close() {
	close(p.tasks)
}
