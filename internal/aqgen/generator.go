package aqgen

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/aqgenproject/aqgen/internal/aqgen/aqdb"
	"github.com/aqgenproject/aqgen/internal/aqgen/configuration"
	"github.com/aqgenproject/aqgen/internal/aqgen/idgen"
	"github.com/aqgenproject/aqgen/internal/aqgen/metrics"
	"github.com/aqgenproject/aqgen/internal/aqgen/model"
	"github.com/aqgenproject/aqgen/internal/aqgen/partition"
	"github.com/aqgenproject/aqgen/internal/aqgen/worker"
	"github.com/aqgenproject/aqgen/internal/common/app"
	"github.com/aqgenproject/aqgen/internal/common/database"
)

// Run partitions the configured time range across the worker pool, generates
// and bulk-loads records, and blocks until every worker has terminated or
// the shutdown grace period has expired.  This is the only place that owns
// process-wide state: the cancellation context, the worker set and the
// connection pool.
func Run(config *configuration.AqGenConfiguration) error {
	log := logrus.WithField("service", "AqGen").WithField("runId", uuid.NewString())

	if err := validate(config); err != nil {
		return err
	}
	interval, err := config.IntervalDuration()
	if err != nil {
		return err
	}

	devices := partition.DeviceIds(config.DeviceCount)
	assignments, err := partition.Partition(
		model.TimeRange{Start: config.Start, End: config.End},
		interval,
		config.Workers,
		devices,
		config.MaxRecords,
	)
	if err != nil {
		return err
	}

	ctx := app.CreateContextWithShutdown()

	// One pooled connection per worker; contention is structurally impossible.
	config.Postgres.MaxOpenConns = config.Workers
	log.Info("Opening connection pool to postgres")
	db, err := database.OpenPgxPool(config.Postgres)
	if err != nil {
		return err
	}

	if config.MetricsPort > 0 {
		go serveMetrics(config.MetricsPort)
	}

	log.Infof("Generating records from %s to %s every %s for %d devices across %d workers",
		config.Start, config.End, interval, config.DeviceCount, config.Workers)

	return runWorkers(ctx, log, db, assignments, interval, config.BatchSize, config.ShutdownGracePeriod)
}

// runWorkers starts one goroutine per assignment, each owning one pooled
// connection, then blocks until every worker has joined or the grace period
// after a shutdown request has expired.
func runWorkers(ctx context.Context, log *logrus.Entry, db *pgxpool.Pool, assignments []*model.WorkerAssignment, interval time.Duration, batchSize int, gracePeriod time.Duration) error {
	allocator := idgen.NewUlidAllocator()
	m := metrics.Get()

	workers := make([]*worker.Worker, 0, len(assignments))
	var mu sync.Mutex
	var workerErrors *multierror.Error
	wg := &sync.WaitGroup{}
	startTime := time.Now()

	for _, assignment := range assignments {
		conn, err := db.Acquire(ctx)
		if err != nil {
			// A termination signal during startup is not an error: the
			// workers already running drain and release as usual.
			if ctx.Err() != nil {
				log.Info("Shutdown requested during startup, draining")
				break
			}
			closePool(log, db, gracePeriod)
			return errors.Wrapf(err, "acquiring connection for worker %d", assignment.WorkerId)
		}
		w := worker.New(assignment, interval, batchSize, allocator, aqdb.New(conn, m), m)
		workers = append(workers, w)
		wg.Add(1)
		go func(w *worker.Worker, conn *pgxpool.Conn) {
			defer wg.Done()
			defer conn.Release()
			if err := w.Run(ctx); err != nil {
				log.Errorf("Worker terminated early: %+v", err)
				mu.Lock()
				workerErrors = multierror.Append(workerErrors, err)
				mu.Unlock()
			}
		}(w, conn)
	}

	waitForWorkers(ctx, log, wg, workers, gracePeriod)
	report(log, workers, time.Since(startTime))
	closePool(log, db, gracePeriod)

	mu.Lock()
	defer mu.Unlock()
	return workerErrors.ErrorOrNil()
}

func validate(config *configuration.AqGenConfiguration) error {
	if config.Workers < 1 {
		return errors.Errorf("worker count must be at least 1, got %d", config.Workers)
	}
	if config.BatchSize < 1 {
		return errors.Errorf("batch size must be at least 1, got %d", config.BatchSize)
	}
	if config.BatchSize > aqdb.MaxBatchRecords {
		return errors.Errorf("batch size must be at most %d (the largest multi-row insert postgres accepts), got %d", aqdb.MaxBatchRecords, config.BatchSize)
	}
	if config.DeviceCount < 1 {
		return errors.Errorf("device count must be at least 1, got %d", config.DeviceCount)
	}
	if config.End.Before(config.Start) {
		return errors.Errorf("end time %s is before start time %s", config.End, config.Start)
	}
	return nil
}

// waitForWorkers blocks until all workers have joined.  After a shutdown
// request, the wait is bounded by the grace period: workers that miss it are
// logged and abandoned, never forcibly killed.
func waitForWorkers(ctx context.Context, log *logrus.Entry, wg *sync.WaitGroup, workers []*worker.Worker, gracePeriod time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	log.Infof("Waiting up to %s for workers to drain", gracePeriod)
	select {
	case <-done:
	case <-time.After(gracePeriod):
		for _, w := range workers {
			if w.State() != worker.Stopped {
				log.Warnf("Worker %d did not stop within the grace period (state %s), abandoning", w.Id(), w.State())
			}
		}
	}
}

// report logs the per-worker and aggregate outcome once all workers have
// terminated (or been abandoned).
func report(log *logrus.Entry, workers []*worker.Worker, elapsed time.Duration) {
	var total, totalExpected int64
	for _, w := range workers {
		stats := w.Stats()
		total += stats.InsertedCount()
		totalExpected += w.ExpectedCount()
		entry := log.WithFields(logrus.Fields{
			"worker":   w.Id(),
			"inserted": stats.InsertedCount(),
			"expected": w.ExpectedCount(),
			"state":    w.State().String(),
		})
		if d := w.Discrepancy(); d != 0 {
			entry.Warnf("Worker finished with a discrepancy of %d records", d)
		} else {
			entry.Info("Worker finished")
		}
	}
	rate := 0.0
	if elapsed > 0 {
		rate = float64(total) / elapsed.Seconds()
	}
	log.Infof("Run complete: %d/%d records inserted in %s (%.2f records/s)", total, totalExpected, elapsed.Round(time.Millisecond), rate)
}

// poolCloser is the release operation of a connection pool.
type poolCloser interface {
	Close()
}

// closePool releases the pool without letting an abandoned worker's held
// connection block shutdown forever.  Leaking that connection is an accepted
// risk; the close is bounded rather than unbounded.
func closePool(log *logrus.Entry, db poolCloser, gracePeriod time.Duration) {
	closed := make(chan struct{})
	go func() {
		db.Close()
		close(closed)
	}()
	select {
	case <-closed:
		log.Info("Connection pool released")
	case <-time.After(gracePeriod):
		log.Warn("Connection pool did not close within the grace period, an abandoned worker may still hold a connection")
	}
}

func serveMetrics(port uint16) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
		logrus.WithError(err).Error("Metrics server stopped")
	}
}
