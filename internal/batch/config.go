package batch

import (
	"fmt"
	"time"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
)

// Job is a cron-triggered run of the pipeline
type Job struct {
	Name    string         `toml:"name"`
	Cron    string         `toml:"cron"`
	Mode    domain.RunMode `toml:"mode"`
	Timeout time.Duration  `toml:"timeout"`
}

// DefaultJobs triggers one auto run a minute after every full hour
func DefaultJobs() []Job {
	return []Job{{Name: "hourly", Cron: "1 * * * *", Mode: domain.ModeAuto, Timeout: 45 * time.Minute}}
}

// Validate checks the job and fills defaults
func (j *Job) Validate() error {
	if j.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if j.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(j.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	switch j.Mode {
	case "":
		j.Mode = domain.ModeAuto
	case domain.ModeAuto, domain.ModePreview, domain.ModeDryRun:
	default:
		return fmt.Errorf("job %s: unknown mode %q", j.Name, j.Mode)
	}
	if j.Timeout <= 0 {
		j.Timeout = 45 * time.Minute
	}
	return nil
}
