// Package startupcheck validates configuration at boot and prints a
// colored step-by-step report, so a misconfigured deployment fails
// loudly before the first device poll.
package startupcheck

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"eink_backend/core"
	"eink_backend/store"
	"eink_backend/textai"
)

// StepStatus represents the status of a validation step.
type StepStatus int

const (
	StepPassed StepStatus = iota
	StepFailed
	StepWarning
)

// String returns the string representation of a step status.
func (s StepStatus) String() string {
	switch s {
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// Step is a single check with its outcome.
type Step struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// Result is the aggregate outcome of a suite run.
type Result struct {
	Steps       []Step
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

// Suite runs the startup checks. Text providers and the image key are
// checked for presence, the database for writability and applied
// migrations.
type Suite struct {
	cfg          *core.Config
	registry     *textai.Registry
	output       io.Writer
	showProgress bool
}

// NewSuite creates a Suite writing progress to stdout.
func NewSuite(cfg *core.Config, registry *textai.Registry) *Suite {
	return &Suite{
		cfg:          cfg,
		registry:     registry,
		output:       os.Stdout,
		showProgress: true,
	}
}

// WithOutput sets the output writer for progress messages.
func (s *Suite) WithOutput(w io.Writer) *Suite {
	s.output = w
	return s
}

// WithShowProgress enables or disables progress output.
func (s *Suite) WithShowProgress(show bool) *Suite {
	s.showProgress = show
	return s
}

// Run executes all checks in sequence.
func (s *Suite) Run() Result {
	start := time.Now()

	if s.showProgress {
		s.printHeader("E-Ink Backend Startup Checks")
	}

	steps := []Step{
		s.runStep("Text Providers", s.checkTextProviders),
		s.runStep("Image Provider", s.checkImageProvider),
		s.runStep("Database", s.checkDatabase),
	}

	result := buildResult(steps, start)
	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

// checkTextProviders fails when no text provider has a credential;
// a partial chain is a warning, a full chain passes.
func (s *Suite) checkTextProviders() (StepStatus, string, error) {
	statuses := s.registry.Status()

	var available, total int
	var missing []string
	for _, st := range statuses {
		total++
		if st.Available {
			available++
		} else {
			missing = append(missing, st.EnvKey)
		}
	}

	switch {
	case available == 0:
		return StepFailed, "", fmt.Errorf("no text provider configured, set one of: %s", strings.Join(missing, ", "))
	case available < total:
		return StepWarning, fmt.Sprintf("%d/%d providers configured (missing %s)",
			available, total, strings.Join(missing, ", ")), nil
	default:
		return StepPassed, fmt.Sprintf("%d/%d providers configured", available, total), nil
	}
}

// checkImageProvider warns when image generation is unconfigured;
// quote-only deployments are still valid.
func (s *Suite) checkImageProvider() (StepStatus, string, error) {
	if s.cfg.ImageAPIKey == "" {
		return StepWarning, "IMAGE_API_KEY not set, image views will fall back to text", nil
	}
	return StepPassed, "image generation configured", nil
}

// checkDatabase opens the database, applies pending migrations and
// verifies the schema version.
func (s *Suite) checkDatabase() (StepStatus, string, error) {
	if err := store.MigrateUpFromPath(s.cfg.DatabasePath, s.cfg.MigrationsPath); err != nil {
		return StepFailed, "", fmt.Errorf("migration failed: %w", err)
	}

	db, err := store.NewSQLiteConnectionWithDefaults(s.cfg.DatabasePath)
	if err != nil {
		return StepFailed, "", err
	}
	version, dirty, err := store.GetMigrationVersion(db, s.cfg.MigrationsPath)
	if err != nil {
		return StepFailed, "", err
	}
	if dirty {
		return StepFailed, "", fmt.Errorf("database migration state is dirty at version %d", version)
	}
	return StepPassed, fmt.Sprintf("schema version %d", version), nil
}

// runStep executes a check with timing and progress output.
func (s *Suite) runStep(name string, fn func() (StepStatus, string, error)) Step {
	if s.showProgress {
		fmt.Fprintf(s.output, "  ◌ %s...", name)
	}

	start := time.Now()
	status, message, err := fn()
	step := Step{
		Name:    name,
		Status:  status,
		Message: message,
		Error:   err,
		Latency: time.Since(start),
	}

	if s.showProgress {
		s.printStep(step)
	}
	return step
}

func buildResult(steps []Step, start time.Time) Result {
	result := Result{
		Steps:    steps,
		Duration: time.Since(start),
		Success:  true,
	}
	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			result.PassedSteps++
		case StepFailed:
			result.FailedSteps++
			result.Success = false
		case StepWarning:
			result.Warnings++
		}
	}
	return result
}

// GetFirstError returns the first error from failed steps, or nil.
func (r Result) GetFirstError() error {
	for _, step := range r.Steps {
		if step.Error != nil {
			return step.Error
		}
	}
	return nil
}

// Summary returns a human-readable summary string.
func (r Result) Summary() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Startup checks %s: ", map[bool]string{true: "passed", false: "failed"}[r.Success]))
	sb.WriteString(fmt.Sprintf("%d/%d passed", r.PassedSteps, len(r.Steps)))
	if r.FailedSteps > 0 {
		sb.WriteString(fmt.Sprintf(", %d failed", r.FailedSteps))
	}
	if r.Warnings > 0 {
		sb.WriteString(fmt.Sprintf(", %d warnings", r.Warnings))
	}
	sb.WriteString(fmt.Sprintf(" (took %v)", r.Duration.Round(time.Millisecond)))
	return sb.String()
}

func (s *Suite) printHeader(title string) {
	fmt.Fprintln(s.output)
	headerColor := color.New(color.FgCyan, color.Bold)
	headerColor.Fprintf(s.output, "━━━ %s ━━━\n", title)
	fmt.Fprintln(s.output)
}

func (s *Suite) printStep(step Step) {
	var icon string
	var clr *color.Color

	switch step.Status {
	case StepPassed:
		icon = "✓"
		clr = color.New(color.FgGreen)
	case StepWarning:
		icon = "!"
		clr = color.New(color.FgYellow)
	default:
		icon = "✗"
		clr = color.New(color.FgRed)
	}

	// Clear the "running" line and print result
	fmt.Fprintf(s.output, "\r")
	clr.Fprintf(s.output, "  %s %s", icon, step.Name)
	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Status == StepFailed && step.Error != nil {
		color.New(color.FgRed).Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

func (s *Suite) printSummary(result Result) {
	fmt.Fprintln(s.output)

	if result.Success {
		successColor := color.New(color.FgGreen, color.Bold)
		successColor.Fprintf(s.output, "━━━ Checks Passed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d/%d in %v)",
			result.PassedSteps, len(result.Steps), result.Duration.Round(time.Millisecond))
		successColor.Fprintln(s.output, " ━━━")
	} else {
		failColor := color.New(color.FgRed, color.Bold)
		failColor.Fprintf(s.output, "━━━ Checks Failed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d passed, %d failed)",
			result.PassedSteps, result.FailedSteps)
		failColor.Fprintln(s.output, " ━━━")
	}

	fmt.Fprintln(s.output)
}
