package checkout

import (
	"context"
	"fmt"
	"sync"
)

// Outcome is the settled result of one task.
type Outcome[T any] struct {
	Value T
	Err   error
}

// SettleAll runs every task concurrently and waits for all of them.
// A failing task never cancels its siblings. Outcomes are returned in task order.
func SettleAll[T any](ctx context.Context, tasks []func(context.Context) (T, error)) []Outcome[T] {
	outcomes := make([]Outcome[T], len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task func(context.Context) (T, error)) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i].Err = fmt.Errorf("task %d panicked: %v", i, r)
				}
			}()
			v, err := task(ctx)
			outcomes[i] = Outcome[T]{Value: v, Err: err}
		}(i, task)
	}
	wg.Wait()

	return outcomes
}
