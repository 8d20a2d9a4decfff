package tasks

import "context"

// TaskFunc is the signature of every scheduled task. The context comes
// from the scheduler and should be honored for cancellation.
type TaskFunc func(ctx context.Context) error

// RegisterAllTasks builds the task registry. Map keys match the task
// names used in the scheduler configuration.
func RegisterAllTasks(deps TaskDeps) map[string]TaskFunc {
	tasks := map[string]TaskFunc{
		"refresh_channels": newRefreshChannelsTask(deps),
		"sql_maintenance":  newSQLMaintenanceTask(deps),
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
