package skein

import (
	"context"
	"fmt"
	"time"

	"github.com/skeinworks/skein/internal/eventbus"
)

// AsyncExecutionStatus reports the state of an asynchronous run.
type AsyncExecutionStatus struct {
	ExecutionID  string        `json:"execution_id"`
	Query        string        `json:"query"`
	CurrentState ProcessState  `json:"current_state"`
	StartTime    time.Time     `json:"start_time"`
	Duration     time.Duration `json:"duration"`
	IsComplete   bool          `json:"is_complete"`
	HasError     bool          `json:"has_error"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ErrorStage   string        `json:"error_stage,omitempty"`
}

// GetAsyncStatus retrieves the current status of an async run.
func (s *Skein) GetAsyncStatus(executionID string) (*AsyncExecutionStatus, error) {
	s.asyncExecutionsMutex.RLock()
	defer s.asyncExecutionsMutex.RUnlock()

	pCtx, exists := s.asyncExecutions[executionID]
	if !exists {
		return nil, fmt.Errorf("execution with ID %q not found", executionID)
	}

	status := &AsyncExecutionStatus{
		ExecutionID:  executionID,
		Query:        pCtx.Query,
		CurrentState: pCtx.CurrentState,
		StartTime:    pCtx.StartTime,
		Duration:     pCtx.GetTotalDuration(),
		IsComplete:   pCtx.CurrentState == StateComplete,
		HasError:     pCtx.CurrentState == StateError,
	}

	if pCtx.LastError != nil {
		status.ErrorMessage = pCtx.LastError.Error()
		status.ErrorStage = pCtx.ErrorStage
	}

	return status, nil
}

// GetAsyncResult retrieves the final answer of a completed async run.
func (s *Skein) GetAsyncResult(executionID string) (string, error) {
	s.asyncExecutionsMutex.RLock()
	defer s.asyncExecutionsMutex.RUnlock()

	pCtx, exists := s.asyncExecutions[executionID]
	if !exists {
		return "", fmt.Errorf("execution with ID %q not found", executionID)
	}

	if pCtx.CurrentState != StateComplete {
		if pCtx.CurrentState == StateError {
			return "", fmt.Errorf("execution failed during stage %q: %w", pCtx.ErrorStage, pCtx.LastError)
		}
		return "", fmt.Errorf("execution is still in progress (current state: %s)", pCtx.CurrentState)
	}

	if pCtx.LastError != nil {
		return "", fmt.Errorf("execution completed with an error during stage %q: %w", pCtx.ErrorStage, pCtx.LastError)
	}

	return pCtx.FinalAnswer, nil
}

// CancelAsyncProcess cancels an ongoing async run. Returns true if the run
// was cancelled, false if it had already finished.
func (s *Skein) CancelAsyncProcess(executionID string) (bool, error) {
	s.asyncExecutionsMutex.Lock()
	defer s.asyncExecutionsMutex.Unlock()

	pCtx, exists := s.asyncExecutions[executionID]
	if !exists {
		return false, fmt.Errorf("execution with ID %q not found", executionID)
	}

	if pCtx.IsTerminal() {
		return false, nil
	}

	cancelFn, ok := pCtx.StateData["cancel"].(context.CancelFunc)
	if !ok {
		return false, fmt.Errorf("cannot cancel execution: cancel function not found")
	}
	cancelFn()

	pCtx.SetCancelled(NewCancelledError(string(pCtx.CurrentState), context.Canceled), string(pCtx.CurrentState))

	if s.config.EnableEventBus && s.eventBus != nil {
		s.eventBus.Publish(context.Background(), eventbus.NewEvent(
			eventbus.EventQueryAsyncProcessingCancelled,
			pCtx.Query,
			"Skein.CancelAsyncProcess",
			map[string]interface{}{
				"execution_id": executionID,
				"duration_ms":  pCtx.GetTotalDuration().Milliseconds(),
			},
		))
	}

	return true, nil
}

// ListAsyncExecutions returns all async execution IDs with their states.
func (s *Skein) ListAsyncExecutions() map[string]string {
	s.asyncExecutionsMutex.RLock()
	defer s.asyncExecutionsMutex.RUnlock()

	result := make(map[string]string, len(s.asyncExecutions))
	for id, pCtx := range s.asyncExecutions {
		result[id] = string(pCtx.CurrentState)
	}
	return result
}

// CleanupCompletedExecutions drops terminal runs older than the given age
// and returns how many were removed.
func (s *Skein) CleanupCompletedExecutions(olderThan time.Duration) int {
	s.asyncExecutionsMutex.Lock()
	defer s.asyncExecutionsMutex.Unlock()

	now := time.Now()
	count := 0
	for id, pCtx := range s.asyncExecutions {
		if pCtx.IsTerminal() && now.Sub(pCtx.StateStartTimes[pCtx.CurrentState]) > olderThan {
			delete(s.asyncExecutions, id)
			count++
		}
	}
	return count
}
