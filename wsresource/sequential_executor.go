package wsresource

import "sync"

// Single worker executor: submitted tasks run one at a time in submission order on a
// background goroutine. The worker goroutine only lives while tasks are pending.
type sequentialExecutor struct {
	mu      sync.Mutex
	tasks   []func()
	running bool
}

// Queue a task. Never blocks.
func (executor *sequentialExecutor) Submit(task func()) {
	executor.mu.Lock()
	defer executor.mu.Unlock()
	executor.tasks = append(executor.tasks, task)
	if !executor.running {
		executor.running = true
		go executor.run()
	}
}

func (executor *sequentialExecutor) run() {
	for {
		executor.mu.Lock()
		if len(executor.tasks) == 0 {
			executor.running = false
			executor.mu.Unlock()
			return
		}
		task := executor.tasks[0]
		executor.tasks[0] = nil
		executor.tasks = executor.tasks[1:]
		executor.mu.Unlock()
		task()
	}
}
