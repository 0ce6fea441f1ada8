package engine

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// InitializeSchedules starts the housekeeping cron jobs and returns the
// scheduler so the caller can stop it on shutdown
func (serverHandler *ServerHandler) InitializeSchedules() *cron.Cron {
	c := cron.New()
	skip := cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger))

	c.AddJob("@every 1m", skip.Then(cron.FuncJob(serverHandler.pruneSetsJobFunc)))
	Logger.Info("Adding rendered set expiry scheduler", "ttl", serverHandler.Store.ttl)

	c.AddJob("@hourly", skip.Then(cron.FuncJob(serverHandler.pruneJobsJobFunc)))
	Logger.Info("Adding job history scheduler", "retention", serverHandler.jobRetention())

	c.Start()
	return c
}

func (serverHandler *ServerHandler) jobRetention() time.Duration {
	if serverHandler.ServerConfig.JobRetention > 0 {
		return serverHandler.ServerConfig.JobRetention
	}
	return 7 * 24 * time.Hour
}

// pruneSetsJobFunc drops rendered sets nobody has fetched within the TTL
func (serverHandler *ServerHandler) pruneSetsJobFunc() {
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in set expiry job", "panic", r)
		}
	}()

	if pruned := serverHandler.Store.Prune(); pruned > 0 {
		Logger.Info("Expired rendered sets", "count", pruned, "remaining", serverHandler.Store.Len())
	}
}

// pruneJobsJobFunc deletes finished jobs past the retention period
func (serverHandler *ServerHandler) pruneJobsJobFunc() {
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in job history cleanup", "panic", r)
		}
	}()

	deleted, err := serverHandler.DB.DeleteOldJobs(serverHandler.jobRetention())
	if err != nil {
		Logger.Error("Failed to delete old jobs", "error", err)
		return
	}
	if deleted > 0 {
		Logger.Info("Deleted old jobs", "count", deleted)
	}
}
