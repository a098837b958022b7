// Package backup requests the daily managed export of the default Firestore
// database. It only fires the request; completion is not tracked.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PipeOpsHQ/financeira-functions/audit"
	"github.com/PipeOpsHQ/financeira-functions/observe"
)

const (
	Name     = "backupFirestoreDaily"
	Schedule = "0 3 * * *"
	TimeZone = "America/Recife"

	pathPrefix = "firestore-backups"
)

// CronSpec is Schedule pinned to TimeZone, in the form robfig/cron parses.
func CronSpec() string {
	return "CRON_TZ=" + TimeZone + " " + Schedule
}

// Target resolves where an export goes. Empty strings mean unresolved.
type Target interface {
	ProjectID(ctx context.Context) string
	Bucket(ctx context.Context) string
}

type Job struct {
	Target   Target
	Exporter Exporter
	Audit    audit.Recorder
	Sink     observe.Sink
	Logger   *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// DatabaseName is the resource name of the default database of project.
func DatabaseName(project string) string {
	return "projects/" + project + "/databases/(default)"
}

// OutputURIPrefix is the export destination for the UTC date of t.
func OutputURIPrefix(bucket string, t time.Time) string {
	return fmt.Sprintf("gs://%s/%s/%s", bucket, pathPrefix, t.UTC().Format("2006-01-02"))
}

// Run requests one export and records it. It returns the destination, or ""
// when the project or bucket cannot be resolved, in which case nothing is
// exported or recorded.
func (j *Job) Run(ctx context.Context) (string, error) {
	inv := observe.Start(j.Sink, observe.KindSchedule, Name)
	logger := j.logger()

	project := j.Target.ProjectID(ctx)
	bucket := j.Target.Bucket(ctx)
	if project == "" || bucket == "" {
		inv.Skip(ctx, "project or bucket not configured")
		logger.InfoContext(ctx, "backup skipped: project or bucket not configured",
			slog.Bool("hasProject", project != ""), slog.Bool("hasBucket", bucket != ""))
		return "", nil
	}

	dest := OutputURIPrefix(bucket, j.now())
	inv.Set("outputUriPrefix", dest)
	op, err := j.Exporter.ExportDocuments(ctx, DatabaseName(project), dest)
	if err != nil {
		logger.ErrorContext(ctx, "backup export failed", slog.String("outputUriPrefix", dest), slog.Any("error", err))
		return "", inv.End(ctx, err)
	}
	if _, err := j.Audit.Record(ctx, audit.BackupRequested(dest, op)); err != nil {
		logger.ErrorContext(ctx, "backup audit failed", slog.String("operation", op), slog.Any("error", err))
		return "", inv.End(ctx, err)
	}
	logger.InfoContext(ctx, "backup requested", slog.String("outputUriPrefix", dest), slog.String("operation", op))
	_ = inv.End(ctx, nil)
	return dest, nil
}

func (j *Job) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

func (j *Job) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
