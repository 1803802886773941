// Package skein provides the core runtime for plan/execute LLM orchestration.
// A planner compiles a query into a dependency graph of tool and LLM calls,
// an executor schedules ready tasks concurrently, and a solver joins the
// recorded results into one final answer.
package skein

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/skeinworks/skein/internal/eventbus"
)

// Skein is the main entry point into the orchestration runtime. It wires the
// planner, executor, and solver together with the registered tools.
type Skein struct {
	planner  Planner
	executor Executor
	solver   Solver
	cache    Cache
	eventBus eventbus.EventBus

	tools map[string]Tool

	config Config

	asyncExecutions      map[string]*ProcessContext
	asyncExecutionsMutex sync.RWMutex
}

// Config holds the configuration options for the runtime.
type Config struct {
	// Maximum number of concurrent task executions.
	MaxConcurrentExecutions int

	// Per-task retries on failure. Zero means fail-fast on the first error.
	MaxRetries int
	RetryDelay time.Duration

	// Per-task execution timeout.
	ExecutionTimeout time.Duration

	// Hard ceiling on scheduler iterations for a single plan.
	MaxSchedulerIterations int

	// Event bus configuration.
	EnableEventBus      bool
	EventBusBufferSize  int
	EventBusWorkerCount int
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentExecutions: 5,
		MaxRetries:              0,
		RetryDelay:              time.Second * 2,
		ExecutionTimeout:        time.Minute * 5,
		MaxSchedulerIterations:  100,
		EnableEventBus:          true,
		EventBusBufferSize:      100,
		EventBusWorkerCount:     5,
	}
}

// Option is a function that configures a Skein instance.
type Option func(*Skein)

// WithConfig sets the runtime configuration.
func WithConfig(config Config) Option {
	return func(s *Skein) {
		s.config = config
	}
}

// WithPlanner sets the planner component.
func WithPlanner(planner Planner) Option {
	return func(s *Skein) {
		s.planner = planner
	}
}

// WithExecutor sets the executor component.
func WithExecutor(executor Executor) Option {
	return func(s *Skein) {
		s.executor = executor
	}
}

// WithSolver sets the solver component.
func WithSolver(solver Solver) Option {
	return func(s *Skein) {
		s.solver = solver
	}
}

// WithCache sets the cache component.
func WithCache(cache Cache) Option {
	return func(s *Skein) {
		s.cache = cache
	}
}

// WithEventBus sets the event bus component.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(s *Skein) {
		s.eventBus = bus
	}
}

// WithTools adds tools to the runtime.
func WithTools(tools map[string]Tool) Option {
	return func(s *Skein) {
		if s.tools == nil {
			s.tools = make(map[string]Tool)
		}
		for name, tool := range tools {
			s.tools[name] = tool
		}
	}
}

// New creates a new Skein instance with the provided options.
func New(options ...Option) (*Skein, error) {
	s := &Skein{
		config:          DefaultConfig(),
		tools:           make(map[string]Tool),
		asyncExecutions: make(map[string]*ProcessContext),
	}

	for _, option := range options {
		option(s)
	}

	if s.planner == nil {
		return nil, NewConfigurationError("planner is required", nil)
	}
	if s.executor == nil {
		return nil, NewConfigurationError("executor is required", nil)
	}
	if s.solver == nil {
		return nil, NewConfigurationError("solver is required", nil)
	}
	if len(s.tools) == 0 {
		return nil, NewConfigurationError("at least one tool is required", nil)
	}

	if s.config.EnableEventBus && s.eventBus == nil {
		s.eventBus = eventbus.NewChannelEventBus(
			eventbus.WithBufferSize(s.config.EventBusBufferSize),
			eventbus.WithWorkerCount(s.config.EventBusWorkerCount),
		)
		log.Debug().Msg("initialized default channel event bus")
	}

	return s, nil
}

// RegisterTool adds a new tool to the runtime.
func (s *Skein) RegisterTool(name string, tool Tool) error {
	if _, exists := s.tools[name]; exists {
		return NewConfigurationError("tool with name '"+name+"' already exists", nil)
	}
	s.tools[name] = tool
	return nil
}

// GetToolSchemas returns tool descriptions keyed by name for planner prompts.
func (s *Skein) GetToolSchemas() map[string]string {
	schemas := make(map[string]string, len(s.tools))
	for name, tool := range s.tools {
		schemas[name] = tool.Description()
	}
	return schemas
}

// GetToolByName returns a tool by its name.
func (s *Skein) GetToolByName(name string) (Tool, error) {
	if tool, exists := s.tools[name]; exists {
		return tool, nil
	}
	return nil, NewToolNotFoundError("runtime", name)
}

// ListTools returns the names of all registered tools.
func (s *Skein) ListTools() []string {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	return names
}

// Process handles an end-to-end query through the plan/execute/join pipeline
// using a pushdown automaton state machine.
func (s *Skein) Process(ctx context.Context, query string) (string, error) {
	stateMachine := s.createStateMachine()
	processContext := NewProcessContext(query)
	return stateMachine.Execute(ctx, processContext)
}

func (s *Skein) createStateMachine() *StateMachine {
	var bus eventbus.EventBus
	if s.config.EnableEventBus {
		bus = s.eventBus
	}

	components := Components{
		Planner:  s.planner,
		Executor: s.executor,
		Solver:   s.solver,
		Tools:    make(map[string]Tool, len(s.tools)),
		Config:   s.config,
		GetSchemas: func() map[string]string {
			return s.GetToolSchemas()
		},
	}
	for name, tool := range s.tools {
		components.Tools[name] = tool
	}

	return CreateProcessStateMachine(components, bus)
}

// ProcessAsync starts an asynchronous run and returns its execution ID.
func (s *Skein) ProcessAsync(ctx context.Context, query string) (string, error) {
	executionID := uuid.New().String()

	stateMachine := s.createStateMachine()
	processContext := NewProcessContext(query)

	s.asyncExecutionsMutex.Lock()
	s.asyncExecutions[executionID] = processContext
	s.asyncExecutionsMutex.Unlock()

	asyncCtx, cancel := context.WithCancel(context.Background())
	processContext.StateData["cancel"] = cancel

	if s.config.EnableEventBus && s.eventBus != nil {
		s.eventBus.Publish(ctx, eventbus.NewEvent(
			eventbus.EventQueryAsyncProcessingStarted,
			query,
			"Skein.ProcessAsync",
			map[string]interface{}{
				"timestamp":    time.Now().Format(time.RFC3339),
				"execution_id": executionID,
			},
		))
	}

	go func() {
		defer cancel()

		result, err := stateMachine.Execute(asyncCtx, processContext)

		s.asyncExecutionsMutex.Lock()
		if pCtx, exists := s.asyncExecutions[executionID]; exists {
			pCtx.FinalAnswer = result
			if err != nil {
				// Execute normally leaves the context terminal; preserve a
				// cancellation recorded by CancelAsyncProcess.
				if !pCtx.IsTerminal() {
					pCtx.SetError(err, string(pCtx.CurrentState))
				}
			} else if pCtx.CurrentState != StateComplete {
				pCtx.Complete()
			}
		}
		s.asyncExecutionsMutex.Unlock()

		if s.config.EnableEventBus && s.eventBus != nil {
			eventType := eventbus.EventQueryAsyncProcessingSuccess
			metadata := map[string]interface{}{
				"execution_id": executionID,
				"duration_ms":  processContext.GetTotalDuration().Milliseconds(),
			}
			if err != nil {
				eventType = eventbus.EventQueryAsyncProcessingFailure
				metadata["error"] = err.Error()
				metadata["error_stage"] = processContext.ErrorStage
			}
			// Background context: the request context may already be done.
			s.eventBus.Publish(context.Background(), eventbus.NewEvent(
				eventType, query, "Skein.ProcessAsync", metadata))
		}
	}()

	return executionID, nil
}
