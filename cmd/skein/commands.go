package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skeinworks/skein"
	"github.com/skeinworks/skein/internal/agent"
	"github.com/skeinworks/skein/internal/cache"
	"github.com/skeinworks/skein/internal/executor"
	"github.com/skeinworks/skein/internal/llm"
	"github.com/skeinworks/skein/internal/planner"
	"github.com/skeinworks/skein/internal/solver"
	"github.com/skeinworks/skein/internal/tools"
)

// newGenerator builds an LLM client for the named provider, reading the API
// key from the environment.
func newGenerator(providerName, model string) (*llm.Client, error) {
	providerType, err := llm.ParseProviderType(providerName)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = providerType.DefaultModel()
	}
	provider, err := providerType.ModelFromEnv(model)
	if err != nil {
		return nil, err
	}
	return llm.NewClient(provider), nil
}

func toolMap(registry *tools.Registry) map[string]skein.Tool {
	m := make(map[string]skein.Tool)
	for _, name := range registry.Names() {
		if tool, ok := registry.Get(name); ok {
			m[name] = tool
		}
	}
	return m
}

func newRunCommand() *cobra.Command {
	var providerName, model string
	var maxWorkers int
	var timeout time.Duration
	var noCache bool

	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Compile a task into a DAG and execute it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newGenerator(providerName, model)
			if err != nil {
				return err
			}
			registry, err := tools.NewBuiltinRegistry()
			if err != nil {
				return err
			}

			plannerOptions := []planner.Option{}
			if !noCache {
				plannerOptions = append(plannerOptions, planner.WithCache(cache.NewInMemoryCache(time.Hour)))
			}

			config := skein.DefaultConfig()
			config.MaxConcurrentExecutions = maxWorkers
			config.ExecutionTimeout = timeout

			runtime, err := skein.New(
				skein.WithConfig(config),
				skein.WithPlanner(planner.NewLLMPlanner(client, plannerOptions...)),
				skein.WithExecutor(executor.NewDAGExecutor(client, registry,
					executor.WithMaxWorkers(maxWorkers),
					executor.WithTaskTimeout(timeout),
					executor.WithMaxIterations(config.MaxSchedulerIterations),
				)),
				skein.WithSolver(solver.NewLLMSolver(client)),
				skein.WithTools(toolMap(registry)),
			)
			if err != nil {
				return err
			}

			answer, err := runtime.Process(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "openai", "LLM provider (openai, anthropic)")
	cmd.Flags().StringVar(&model, "model", "", "model name (provider default if empty)")
	cmd.Flags().IntVar(&maxWorkers, "max-workers", 5, "maximum concurrent task executions")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "per-task execution timeout")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable plan caching")
	return cmd
}

func newReactCommand() *cobra.Command {
	var providerName, model string
	var maxSteps int

	cmd := &cobra.Command{
		Use:   "react <question>",
		Short: "Answer a question with the ReAct loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newGenerator(providerName, model)
			if err != nil {
				return err
			}
			registry, err := tools.NewBuiltinRegistry()
			if err != nil {
				return err
			}

			a := agent.NewReActAgent(client, registry, agent.WithMaxSteps(maxSteps))
			answer, err := a.Run(cmd.Context(), args[0])
			if errors.Is(err, skein.ErrNoAnswer) {
				return fmt.Errorf("no answer within %d steps; retry with a higher --max-steps", maxSteps)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "openai", "LLM provider (openai, anthropic)")
	cmd.Flags().StringVar(&model, "model", "", "model name (provider default if empty)")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 5, "reasoning step budget")
	return cmd
}

func newRewooCommand() *cobra.Command {
	var providerName, model string

	cmd := &cobra.Command{
		Use:   "rewoo <task>",
		Short: "Solve a task with the ReWOO plan-work-solve pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newGenerator(providerName, model)
			if err != nil {
				return err
			}
			registry, err := tools.NewBuiltinRegistry()
			if err != nil {
				return err
			}

			answer, err := agent.NewReWOOAgent(client, registry).Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "openai", "LLM provider (openai, anthropic)")
	cmd.Flags().StringVar(&model, "model", "", "model name (provider default if empty)")
	return cmd
}

func newPlanCommand() *cobra.Command {
	var providerName, model, format string
	var execute bool
	var maxWorkers int
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "plan <file>",
		Short: "Validate a plan file, optionally executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := planner.LoadAndValidatePlan(args[0], format)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "plan is valid: %d tasks\n", plan.TaskCount())
			for _, id := range plan.TaskIDs() {
				task, _ := plan.GetTask(id)
				deps := "(none)"
				if len(task.DependsOn) > 0 {
					deps = fmt.Sprintf("%v", task.DependsOn)
				}
				fmt.Fprintf(out, "  %s: %s[%s] depends on %s\n", id, task.ToolName, task.Arguments, deps)
			}
			if !execute {
				return nil
			}

			client, err := newGenerator(providerName, model)
			if err != nil {
				return err
			}
			registry, err := tools.NewBuiltinRegistry()
			if err != nil {
				return err
			}

			exec := executor.NewDAGExecutor(client, registry,
				executor.WithMaxWorkers(maxWorkers),
				executor.WithTaskTimeout(timeout),
			)
			results, err := exec.ExecutePlan(cmd.Context(), plan)
			if err != nil {
				return err
			}
			for _, id := range plan.TaskIDs() {
				fmt.Fprintf(out, "%s: %s\n", id, results[id])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "plan file format")
	cmd.Flags().BoolVar(&execute, "execute", false, "execute the plan after validating")
	cmd.Flags().StringVar(&providerName, "provider", "openai", "LLM provider (openai, anthropic)")
	cmd.Flags().StringVar(&model, "model", "", "model name (provider default if empty)")
	cmd.Flags().IntVar(&maxWorkers, "max-workers", 5, "maximum concurrent task executions")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "per-task execution timeout")
	return cmd
}

func newToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the registered tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := tools.NewBuiltinRegistry()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), registry.Descriptions())
			return nil
		},
	}
}
