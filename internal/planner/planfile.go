package planner

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/skeinworks/skein"
)

// PlanFile is an offline execution plan loaded from disk, for dry-runs and
// repeatable pipelines that skip the planner model entirely.
type PlanFile struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Tasks       []PlanFileTask `yaml:"tasks"`
}

type PlanFileTask struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	Tool        string   `yaml:"tool"`
	Args        string   `yaml:"args"`
	DependsOn   []string `yaml:"depends_on"`
}

// PlanFileLoader defines an interface for loading a PlanFile from a source.
type PlanFileLoader interface {
	Load(source string) (*PlanFile, error)
	Format() string // e.g., "yaml", "json"
}

// loaderRegistry holds registered PlanFileLoaders by format name.
var loaderRegistry = make(map[string]PlanFileLoader)

// RegisterPlanFileLoader registers a new PlanFileLoader for a given format.
func RegisterPlanFileLoader(loader PlanFileLoader) {
	loaderRegistry[loader.Format()] = loader
}

// GetPlanFileLoader retrieves a loader by format name (e.g., "yaml").
func GetPlanFileLoader(format string) (PlanFileLoader, bool) {
	loader, ok := loaderRegistry[format]
	return loader, ok
}

// YAMLLoader implements PlanFileLoader for YAML files.
type YAMLLoader struct{}

func (YAMLLoader) Load(path string) (*PlanFile, error) {
	return LoadPlanFile(path)
}

func (YAMLLoader) Format() string { return "yaml" }

func init() {
	RegisterPlanFileLoader(YAMLLoader{})
}

// LoadPlanFile parses a YAML plan file.
func LoadPlanFile(path string) (*PlanFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan file: %w", err)
	}
	defer f.Close()

	var file PlanFile
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse plan YAML: %w", err)
	}
	return &file, nil
}

// Validate checks the PlanFile's task entries. Graph-level problems
// (duplicates, dangling dependencies, cycles) surface in ToExecutionPlan.
func (f *PlanFile) Validate() error {
	if len(f.Tasks) == 0 {
		return skein.NewValidationError("planning", "plan file contains no tasks", nil)
	}
	for i, task := range f.Tasks {
		if task.ID == "" {
			return skein.NewValidationError("planning",
				fmt.Sprintf("plan file task %d has no id", i), nil)
		}
		if task.Tool == "" {
			return skein.NewValidationError("planning",
				fmt.Sprintf("plan file task %q has no tool", task.ID), nil)
		}
	}
	return nil
}

// ToExecutionPlan converts the file into a validated execution plan.
func (f *PlanFile) ToExecutionPlan() (*skein.ExecutionPlan, error) {
	tasks := make([]skein.Task, 0, len(f.Tasks))
	for _, fileTask := range f.Tasks {
		tasks = append(tasks, skein.Task{
			ID:          fileTask.ID,
			Description: fileTask.Description,
			ToolName:    fileTask.Tool,
			Arguments:   fileTask.Args,
			DependsOn:   fileTask.DependsOn,
		})
	}
	return skein.NewExecutionPlan(tasks)
}

// LoadAndValidatePlan loads a plan file with the loader matching format,
// validates it, and returns an ExecutionPlan ready for the executor.
func LoadAndValidatePlan(path, format string) (*skein.ExecutionPlan, error) {
	loader, ok := GetPlanFileLoader(format)
	if !ok {
		return nil, skein.NewValidationError("planning",
			fmt.Sprintf("no plan loader registered for format %q", format), nil)
	}

	file, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return file.ToExecutionPlan()
}
