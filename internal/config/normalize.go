package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fenwicklabs/pipeline-orchestrator/internal/clock"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/orcherr"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/paths"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/pipeline"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/probe"
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func parseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(s)
	if len(key) > 3 {
		key = key[:3]
	}
	d, ok := weekdayNames[key]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
	return d, nil
}

func parseTimeOfDay(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func parseWindow(w rawWindow) (clock.Window, error) {
	start, err := parseTimeOfDay(w.Start)
	if err != nil {
		return clock.Window{}, err
	}
	end, err := parseTimeOfDay(w.End)
	if err != nil {
		return clock.Window{}, err
	}
	return clock.Window{StartMinute: start, EndMinute: end}, nil
}

func dirFuncFor(folder string) (func(paths.Paths, time.Time) string, error) {
	switch folder {
	case "", "root":
		return paths.Paths.DatedDir, nil
	case "csv":
		return paths.Paths.CSVDir, nil
	case "merged":
		return paths.Paths.MergedDir, nil
	case "pdf":
		return paths.Paths.PDFDir, nil
	default:
		return nil, fmt.Errorf("unknown artifact folder %q", folder)
	}
}

func buildArtifactCheck(raw *rawArtifactCheck) (pipeline.ArtifactCheck, error) {
	if raw == nil {
		return nil, nil
	}
	dirFn, err := dirFuncFor(raw.Folder)
	if err != nil {
		return nil, err
	}
	glob := raw.Glob
	if glob == "" {
		glob = "*"
	}
	minCount := raw.MinCount
	if minCount < 1 {
		minCount = 1
	}
	return func(p *probe.Probe, pp paths.Paths, day time.Time) bool {
		folder := dirFn(pp, day)
		return p.CountFiles(folder, glob, raw.MinSizeBytes, raw.MinAgeMillis) >= minCount
	}, nil
}

func normalizeKind(s rawStep) (pipeline.Kind, error) {
	switch s.Kind {
	case "windowed_job":
		return pipeline.WindowedJob, nil
	case "unconditional":
		return pipeline.Unconditional, nil
	case "dependency_gated":
		return pipeline.DependencyGated, nil
	case "":
		if len(s.Windows) == 0 {
			return pipeline.DependencyGated, nil
		}
		return pipeline.WindowedJob, nil
	default:
		return "", fmt.Errorf("step %q: unknown kind %q", s.Name, s.Kind)
	}
}

func normalizeAction(s rawStep) (pipeline.Action, error) {
	switch s.Action {
	case "", "run_executable":
		return pipeline.RunExecutable, nil
	case "terminate_family":
		return pipeline.TerminateFamily, nil
	default:
		return "", fmt.Errorf("step %q: unknown action %q", s.Name, s.Action)
	}
}

func normalizeStep(s rawStep) (pipeline.Step, error) {
	if s.Name == "" {
		return pipeline.Step{}, orcherr.ConfigError("a step is missing its name").Build()
	}

	kind, err := normalizeKind(s)
	if err != nil {
		return pipeline.Step{}, orcherr.ConfigError(err.Error()).Build()
	}
	action, err := normalizeAction(s)
	if err != nil {
		return pipeline.Step{}, orcherr.ConfigError(err.Error()).Build()
	}

	windows := make([]clock.Window, 0, len(s.Windows))
	for _, w := range s.Windows {
		parsed, err := parseWindow(w)
		if err != nil {
			return pipeline.Step{}, orcherr.ConfigError(fmt.Sprintf("step %q: %s", s.Name, err)).Build()
		}
		windows = append(windows, parsed)
	}
	if err := clock.ValidateWindows(windows); err != nil {
		return pipeline.Step{}, orcherr.ConfigError(fmt.Sprintf("step %q: %s", s.Name, err)).Build()
	}

	var timeout time.Duration
	if s.Timeout != "" {
		timeout, err = time.ParseDuration(s.Timeout)
		if err != nil {
			return pipeline.Step{}, orcherr.ConfigError(fmt.Sprintf("step %q: invalid timeout %q", s.Name, s.Timeout)).Build()
		}
	}

	requiredDays := make([]time.Weekday, 0, len(s.RequiredDaysOfWeek))
	for _, d := range s.RequiredDaysOfWeek {
		wd, err := parseWeekday(d)
		if err != nil {
			return pipeline.Step{}, orcherr.ConfigError(fmt.Sprintf("step %q: %s", s.Name, err)).Build()
		}
		requiredDays = append(requiredDays, wd)
	}

	maxAttempts := s.MaxAttemptsPerWindow
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	check, err := buildArtifactCheck(s.ArtifactCheck)
	if err != nil {
		return pipeline.Step{}, orcherr.ConfigError(fmt.Sprintf("step %q: %s", s.Name, err)).Build()
	}

	return pipeline.Step{
		Name:                     s.Name,
		Kind:                     kind,
		Action:                   action,
		Windows:                  windows,
		Dependencies:             s.Dependencies,
		Executable:               s.Executable,
		Arguments:                s.Arguments,
		WorkDir:                  s.WorkDir,
		Timeout:                  timeout,
		MaxAttemptsPerWindow:     maxAttempts,
		RequiredDaysOfWeek:       requiredDays,
		CatchUp:                  s.CatchUp,
		ClosesApplicationOnExit:  s.ClosesApplicationOnExit,
		PostSuccessArtifactCheck: check,
	}, nil
}
