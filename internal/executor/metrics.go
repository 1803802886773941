package executor

import (
	"sync"
	"time"

	"github.com/skeinworks/skein"
)

// ExecutorMetrics tracks execution statistics for one plan run.
type ExecutorMetrics struct {
	mu sync.Mutex

	TasksExecuted   int
	TasksSuccessful int
	TasksFailed     int
	TotalRetries    int

	TotalDuration    time.Duration
	LongestTaskTime  time.Duration
	ShortestTaskTime time.Duration
}

// Copy returns a snapshot without the mutex.
func (m *ExecutorMetrics) Copy() ExecutorMetrics {
	return ExecutorMetrics{
		TasksExecuted:    m.TasksExecuted,
		TasksSuccessful:  m.TasksSuccessful,
		TasksFailed:      m.TasksFailed,
		TotalRetries:     m.TotalRetries,
		TotalDuration:    m.TotalDuration,
		LongestTaskTime:  m.LongestTaskTime,
		ShortestTaskTime: m.ShortestTaskTime,
	}
}

func (e *DAGExecutor) resetMetrics() {
	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()

	e.metrics.TasksExecuted = 0
	e.metrics.TasksSuccessful = 0
	e.metrics.TasksFailed = 0
	e.metrics.TotalRetries = 0
	e.metrics.TotalDuration = 0
	e.metrics.LongestTaskTime = 0
	e.metrics.ShortestTaskTime = time.Hour * 24
}

func (e *DAGExecutor) addRetry() {
	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()
	e.metrics.TotalRetries++
}

// updateTaskMetrics records a task that reached a terminal state.
func (e *DAGExecutor) updateTaskMetrics(task *skein.Task) {
	status := task.GetStatus()
	if status != skein.TaskStatusCompleted && status != skein.TaskStatusFailed {
		return
	}
	duration := task.Duration()

	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()

	e.metrics.TasksExecuted++
	e.metrics.TotalDuration += duration
	if duration > e.metrics.LongestTaskTime {
		e.metrics.LongestTaskTime = duration
	}
	if duration > 0 && duration < e.metrics.ShortestTaskTime {
		e.metrics.ShortestTaskTime = duration
	}

	if status == skein.TaskStatusCompleted {
		e.metrics.TasksSuccessful++
	} else {
		e.metrics.TasksFailed++
	}
}

// GetMetrics returns a copy of the current execution metrics.
func (e *DAGExecutor) GetMetrics() ExecutorMetrics {
	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()
	return e.metrics.Copy()
}
