package actions

import (
	"context"
	"log/slog"

	"juliabot/internal/agent"
	"juliabot/internal/repo"
)

// Runner glues detection to execution for the asynchronous post-turn pass.
type Runner struct {
	repo     repo.Repository
	detector *Detector
	executor *Executor
	logger   *slog.Logger
}

var _ agent.ActionRunner = (*Runner)(nil)

// NewRunner builds the runner.
func NewRunner(repository repo.Repository, detector *Detector, executor *Executor, logger *slog.Logger) *Runner {
	return &Runner{
		repo:     repository,
		detector: detector,
		executor: executor,
		logger:   logger.With("component", "action_runner"),
	}
}

// Run re-reads the session tail, detects actions and executes whatever
// survived filtering. Failures are logged and swallowed: this pass runs after
// the reply was already delivered.
func (r *Runner) Run(ctx context.Context, input agent.ActionInput) {
	history, err := r.repo.ListRecentMemory(ctx, input.SessionID, r.detector.window)
	if err != nil {
		r.logger.Warn("failed loading session tail", "session", input.SessionID, "error", err)
		return
	}

	detection, err := r.detector.Detect(ctx, history)
	if err != nil {
		r.logger.Warn("action detection failed", "session", input.SessionID, "error", err)
		return
	}
	if !detection.RequiresAction {
		return
	}

	results := r.executor.ExecuteAll(ctx, detection.Actions, Context{
		CompanyID:    input.CompanyID,
		InstanceName: input.Instance,
		UserID:       input.UserID,
		ContactID:    input.ContactID,
	})
	for _, res := range results {
		if !res.Success {
			r.logger.Warn("detected action failed", "session", input.SessionID, "type", res.Type, "error", res.Error)
		}
	}
}
