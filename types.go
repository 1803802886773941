package skein

import (
	"fmt"
	"sync"
	"time"
)

// TaskStatus represents the possible states of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is waiting for dependencies.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the task is currently executing.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task has completed successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task has failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the task was cancelled before or during execution.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// ToolNameLLM is the sentinel tool name that routes a task's resolved
// arguments straight to the language model instead of a registered tool.
const ToolNameLLM = "LLM"

// Task represents a single unit of planned work. Arguments is the raw
// argument string emitted by the planner and may embed placeholder
// references (#T1, #E2) to the results of dependency tasks.
type Task struct {
	ID          string   `json:"task_id"`
	Description string   `json:"description,omitempty"`
	ToolName    string   `json:"tool_name"`
	Arguments   string   `json:"arguments"`
	DependsOn   []string `json:"dependencies"`

	// Internal execution state, owned by the executor.
	status    TaskStatus `json:"-"`
	result    string     `json:"-"`
	resultSet bool       `json:"-"`
	execErr   error      `json:"-"`
	mutex     sync.Mutex `json:"-"`

	StartTime time.Time `json:"-"`
	EndTime   time.Time `json:"-"`
}

// GetStatus safely retrieves the task's current status.
func (t *Task) GetStatus() TaskStatus {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.status
}

// UpdateStatus safely updates the task's status and timing information.
func (t *Task) UpdateStatus(newStatus TaskStatus, err error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	oldStatus := t.status
	t.status = newStatus

	now := time.Now()
	if newStatus == TaskStatusRunning && oldStatus != TaskStatusRunning {
		t.StartTime = now
	}
	if isTerminalStatus(newStatus) && !isTerminalStatus(oldStatus) {
		t.EndTime = now
	}

	if err != nil {
		t.execErr = err
	}
}

// SetResult records the task's result exactly once and marks it completed.
// A second write is rejected: results are immutable after completion.
func (t *Task) SetResult(result string) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.resultSet {
		return fmt.Errorf("result for task %s already recorded", t.ID)
	}
	t.result = result
	t.resultSet = true
	t.status = TaskStatusCompleted
	if t.EndTime.IsZero() {
		t.EndTime = time.Now()
	}
	return nil
}

// Result returns the recorded result and whether one has been recorded.
// The result is absent until the task has completed successfully.
func (t *Task) Result() (string, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.result, t.resultSet
}

// Err returns the error recorded against the task, if any.
func (t *Task) Err() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.execErr
}

// Duration returns the execution duration of the task.
func (t *Task) Duration() time.Duration {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.StartTime.IsZero() {
		return 0
	}
	if t.EndTime.IsZero() {
		return time.Since(t.StartTime)
	}
	return t.EndTime.Sub(t.StartTime)
}

func isTerminalStatus(s TaskStatus) bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// ExecutionPlan is the dependency graph of planned tasks. Task order is the
// planner's emission order; ReadyTasks iterates in that order so scheduling
// is deterministic.
type ExecutionPlan struct {
	Tasks   []Task           `json:"tasks"`
	TaskMap map[string]*Task `json:"-"`

	// Dependents maps a task ID to the IDs that depend on it.
	Dependents map[string][]string `json:"-"`

	order      []string
	StateMutex sync.RWMutex `json:"-"`
}

// NewExecutionPlan builds a validated plan from the given tasks. It rejects
// duplicate task IDs, dependencies on unknown tasks, and dependency cycles,
// so a plan that constructs successfully is guaranteed to be schedulable.
func NewExecutionPlan(tasks []Task) (*ExecutionPlan, error) {
	plan := &ExecutionPlan{
		Tasks:      tasks,
		TaskMap:    make(map[string]*Task, len(tasks)),
		Dependents: make(map[string][]string, len(tasks)),
		order:      make([]string, 0, len(tasks)),
	}
	for i := range plan.Tasks {
		if err := plan.addTask(&plan.Tasks[i]); err != nil {
			return nil, err
		}
	}
	if err := plan.validate(); err != nil {
		return nil, err
	}
	for i := range plan.Tasks {
		task := &plan.Tasks[i]
		for _, depID := range task.DependsOn {
			plan.Dependents[depID] = append(plan.Dependents[depID], task.ID)
		}
	}
	return plan, nil
}

// addTask inserts a node, rejecting duplicate IDs.
func (ep *ExecutionPlan) addTask(task *Task) error {
	if task.ID == "" {
		return NewValidationError("planning", "task with empty ID", nil)
	}
	if _, exists := ep.TaskMap[task.ID]; exists {
		return NewValidationError("planning", fmt.Sprintf("duplicate task ID %q", task.ID), nil)
	}
	task.status = TaskStatusPending
	ep.TaskMap[task.ID] = task
	ep.order = append(ep.order, task.ID)
	return nil
}

// validate checks for dangling dependencies and cycles via DFS.
func (ep *ExecutionPlan) validate() error {
	for i := range ep.Tasks {
		task := &ep.Tasks[i]
		for _, depID := range task.DependsOn {
			if _, exists := ep.TaskMap[depID]; !exists {
				return NewValidationError("planning",
					fmt.Sprintf("task %q depends on unknown task %q", task.ID, depID), nil)
			}
		}
	}

	visited := make(map[string]bool, len(ep.Tasks))
	onStack := make(map[string]bool, len(ep.Tasks))
	var visit func(id string) error
	visit = func(id string) error {
		if onStack[id] {
			return NewValidationError("planning",
				fmt.Sprintf("dependency cycle detected at task %q", id), nil)
		}
		if visited[id] {
			return nil
		}
		visited[id] = true
		onStack[id] = true
		for _, depID := range ep.TaskMap[id].DependsOn {
			if err := visit(depID); err != nil {
				return err
			}
		}
		onStack[id] = false
		return nil
	}
	for _, id := range ep.order {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// GetTask safely retrieves a task by ID.
func (ep *ExecutionPlan) GetTask(taskID string) (*Task, bool) {
	ep.StateMutex.RLock()
	defer ep.StateMutex.RUnlock()
	task, ok := ep.TaskMap[taskID]
	return task, ok
}

// TaskCount returns the number of tasks in the plan.
func (ep *ExecutionPlan) TaskCount() int {
	return len(ep.Tasks)
}

// TaskIDs returns task IDs in planner emission order.
func (ep *ExecutionPlan) TaskIDs() []string {
	ids := make([]string, len(ep.order))
	copy(ids, ep.order)
	return ids
}

// ReadyTasks returns every pending task whose dependencies all have a
// recorded result, in planner emission order.
func (ep *ExecutionPlan) ReadyTasks() []*Task {
	ep.StateMutex.RLock()
	defer ep.StateMutex.RUnlock()

	ready := []*Task{}
	for _, id := range ep.order {
		task := ep.TaskMap[id]
		if task.GetStatus() != TaskStatusPending {
			continue
		}
		depsMet := true
		for _, depID := range task.DependsOn {
			dep, exists := ep.TaskMap[depID]
			if !exists {
				depsMet = false
				break
			}
			if _, done := dep.Result(); !done {
				depsMet = false
				break
			}
		}
		if depsMet {
			ready = append(ready, task)
		}
	}
	return ready
}

// IsComplete reports whether every task in the plan has completed
// successfully. A failed or cancelled task keeps the plan incomplete; the
// executor's fail-fast policy surfaces that as an error instead of spinning.
func (ep *ExecutionPlan) IsComplete() bool {
	ep.StateMutex.RLock()
	defer ep.StateMutex.RUnlock()

	for _, task := range ep.TaskMap {
		if task.GetStatus() != TaskStatusCompleted {
			return false
		}
	}
	return true
}

// Results returns a snapshot of all recorded task results keyed by task ID.
func (ep *ExecutionPlan) Results() map[string]string {
	ep.StateMutex.RLock()
	defer ep.StateMutex.RUnlock()

	results := make(map[string]string, len(ep.TaskMap))
	for id, task := range ep.TaskMap {
		if result, ok := task.Result(); ok {
			results[id] = result
		}
	}
	return results
}

// PlannerInput contains the information the Planner needs to generate a plan.
type PlannerInput struct {
	Query      string            `json:"query"`
	ToolSchema map[string]string `json:"tool_schema"` // tool name -> description
}
