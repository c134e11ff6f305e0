package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/gridedit/internal/rowstate"
	"github.com/roach88/gridedit/internal/testutil"
	"github.com/roach88/gridedit/internal/validate"
)

// Scenario defines an editing session to replay against a fresh engine.
// The records are seeded into an in-memory store, the steps are executed
// in order, and the final state is checked against Expect.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is optional inline CUE source for the schema layer.
	Schema string `yaml:"schema,omitempty"`

	// SchemaPath selects the definition inside Schema. Defaults to #Record.
	SchemaPath string `yaml:"schema_path,omitempty"`

	// CellRules maps a field to a rule: required, min:N, max:N, pattern:RE.
	CellRules map[string]string `yaml:"cell_rules,omitempty"`

	// AsyncRules maps field → value → message. A record whose field has
	// that value fails async validation with the message.
	AsyncRules map[string]map[string]string `yaml:"async_rules,omitempty"`

	// Records are written to the store before the first load.
	Records []map[string]any `yaml:"records,omitempty"`

	// Failures script backend failures.
	Failures []Failure `yaml:"failures,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Expect is checked after the last step.
	Expect Expect `yaml:"expect"`
}

// Failure makes a backend operation fail with Message. See testutil.Fault
// for how Key and Where select records.
type Failure struct {
	Op      string         `yaml:"op"`
	Key     string         `yaml:"key,omitempty"`
	Where   map[string]any `yaml:"where,omitempty"`
	Message string         `yaml:"message"`
	Times   int            `yaml:"times,omitempty"`
}

// Action names a step.
type Action string

const (
	ActionStartEdit  Action = "start_edit"
	ActionChange     Action = "change"
	ActionCancel     Action = "cancel"
	ActionSave       Action = "save"
	ActionDelete     Action = "delete"
	ActionSoftRemove Action = "soft_remove"
	ActionAddNew     Action = "add_new"
	ActionBulkSave   Action = "bulk_save"
	ActionReload     Action = "reload"
	ActionHeal       Action = "heal"
)

var keyedActions = []Action{
	ActionStartEdit, ActionChange, ActionCancel, ActionSave, ActionDelete, ActionSoftRemove,
}

var allActions = append(slices.Clone(keyedActions), ActionAddNew, ActionBulkSave, ActionReload, ActionHeal)

// Step is one engine call.
type Step struct {
	Action Action `yaml:"action"`
	Key    string `yaml:"key,omitempty"`
	Field  string `yaml:"field,omitempty"`
	Value  any    `yaml:"value,omitempty"`

	// Error declares that the step fails. It is an operation name
	// (create, update, delete, soft_remove, bulk_save, validation), a
	// condition (not_found, busy, deleted, partial) or "any".
	// A step without it must succeed.
	Error string `yaml:"error,omitempty"`
}

// Expect describes the final state. Unset parts are not checked.
type Expect struct {
	// Rows maps a row key to the state it must be in.
	Rows map[string]RowExpect `yaml:"rows,omitempty"`

	// Absent lists keys that must not be tracked.
	Absent []string `yaml:"absent,omitempty"`

	// Visible lists the keys of the visible dataset, in display order.
	Visible []string `yaml:"visible,omitempty"`

	// Pending are the expected change counts.
	Pending *PendingExpect `yaml:"pending,omitempty"`

	// Editing is the focused key, or "" for none.
	Editing *string `yaml:"editing,omitempty"`

	// Sink lists the operations of errors the sink received, in order.
	Sink []string `yaml:"sink,omitempty"`

	// Stored matches the store's non-deleted records, in order, each as
	// a subset.
	Stored []map[string]any `yaml:"stored,omitempty"`
}

// RowExpect describes one row. Unset fields are not checked.
type RowExpect struct {
	Lifecycle string         `yaml:"lifecycle,omitempty"`
	Dirty     *bool          `yaml:"dirty,omitempty"`
	New       *bool          `yaml:"new,omitempty"`
	Current   map[string]any `yaml:"current,omitempty"`
	RowError  *string        `yaml:"row_error,omitempty"`

	// FieldErrors lists the fields that must carry a message.
	// An explicit empty list asserts there are none.
	FieldErrors []string `yaml:"field_errors,omitempty"`

	// Messages matches field messages exactly.
	Messages map[string]string `yaml:"messages,omitempty"`
}

// PendingExpect are change counts.
type PendingExpect struct {
	New      int `yaml:"new"`
	Modified int `yaml:"modified"`
	Deleted  int `yaml:"deleted"`
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "step:" vs "steps:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by path.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	slices.Sort(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for field, rule := range s.CellRules {
		if _, err := validate.ParseRule(rule); err != nil {
			return fmt.Errorf("cell_rules[%s]: %w", field, err)
		}
	}

	for i, f := range s.Failures {
		switch testutil.Op(f.Op) {
		case testutil.OpSave, testutil.OpBulkSave, testutil.OpDelete, testutil.OpSoftRemove:
		default:
			return fmt.Errorf("failures[%d]: unknown op %q", i, f.Op)
		}
		if f.Message == "" {
			return fmt.Errorf("failures[%d]: message is required", i)
		}
	}

	for i, st := range s.Steps {
		if !slices.Contains(allActions, st.Action) {
			return fmt.Errorf("steps[%d]: unknown action %q", i, st.Action)
		}
		if slices.Contains(keyedActions, st.Action) && st.Key == "" {
			return fmt.Errorf("steps[%d]: %s requires key", i, st.Action)
		}
		if st.Action == ActionChange && st.Field == "" {
			return fmt.Errorf("steps[%d]: change requires field", i)
		}
		if st.Error != "" && !knownErrorKind(st.Error) {
			return fmt.Errorf("steps[%d]: unknown error kind %q", i, st.Error)
		}
	}

	for key, row := range s.Expect.Rows {
		if row.Lifecycle == "" {
			continue
		}
		if _, err := rowstate.ParseLifecycle(row.Lifecycle); err != nil {
			return fmt.Errorf("expect.rows[%s]: %w", key, err)
		}
	}

	return nil
}
