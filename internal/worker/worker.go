package worker

import (
	"context"
	"sync"
)

// Task is one unit of work handed to an engine.
type Task[J any] struct {
	Index int
	Job   J
}

// Result wraps the output of one task. Err is per task; a failed task never
// stops its siblings.
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

// Func processes a single job. engine identifies the goroutine running it.
type Func[J, R any] func(ctx context.Context, engine int, job J) (R, error)

// Run spreads jobs over engines goroutines and returns results in job order.
// Jobs not yet started when ctx is cancelled report ctx.Err().
func Run[J, R any](ctx context.Context, engines int, jobs []J, fn Func[J, R]) []Result[R] {
	if engines < 1 {
		engines = 1
	}
	if engines > len(jobs) {
		engines = len(jobs)
	}

	results := make([]Result[R], len(jobs))
	taskChan := make(chan Task[J])
	var wg sync.WaitGroup

	for i := 0; i < engines; i++ {
		wg.Add(1)
		go func(engine int) {
			defer wg.Done()
			for task := range taskChan {
				// Each slot is written by exactly one engine.
				v, err := fn(ctx, engine, task.Job)
				results[task.Index] = Result[R]{Index: task.Index, Value: v, Err: err}
			}
		}(i)
	}

	next := 0
dispatch:
	for ; next < len(jobs); next++ {
		select {
		case taskChan <- Task[J]{Index: next, Job: jobs[next]}:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(taskChan)
	wg.Wait()

	for i := next; i < len(jobs); i++ {
		results[i] = Result[R]{Index: i, Err: ctx.Err()}
	}
	return results
}
