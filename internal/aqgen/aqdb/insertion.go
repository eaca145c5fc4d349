package aqdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/aqgenproject/aqgen/internal/aqgen/metrics"
	"github.com/aqgenproject/aqgen/internal/aqgen/model"
	"github.com/aqgenproject/aqgen/internal/common/database"
)

// Queryer is the subset of pgx operations the loader needs.  Both
// *pgxpool.Pool and *pgxpool.Conn satisfy it; workers pass their exclusive
// pooled connection.
type Queryer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

const insertColumns = "id, mn, monitor_time, pm25, pm10, co, no2, so2, o3, create_time, update_time"

const scalarInsertSql = `INSERT INTO air_quality_monitoring (` + insertColumns + `)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// Postgres limits a statement to 65535 bind parameters.  Each record binds
// 11 of them, so this is the largest batch the multi-row insert can carry.
const MaxBatchRecords = 65535 / 11

// AirQualityDb persists record batches.  We first try a single multi-row
// insert inside one transaction.  If this fails then we fall back to a
// slower, serial insert and discard any rows that cannot be inserted, so a
// single bad record never loses the rest of its batch.
type AirQualityDb struct {
	db      Queryer
	metrics *metrics.Metrics
}

func New(db Queryer, metrics *metrics.Metrics) *AirQualityDb {
	return &AirQualityDb{db: db, metrics: metrics}
}

// Store persists the batch and returns the number of rows actually inserted.
// Failures never propagate past the loader: the worst case is rows skipped
// with an accompanying log entry.
func (l *AirQualityDb) Store(ctx context.Context, batch []*model.Record) int {
	if len(batch) == 0 {
		return 0
	}
	err := l.storeBatch(ctx, batch)
	if err == nil {
		l.metrics.RecordRowsInserted(metrics.InsertPathBatch, len(batch))
		return len(batch)
	}
	log.Warnf("Inserting batch of %d records failed, will attempt to insert serially (this might be slow).  Error was %+v", len(batch), err)
	return l.storeScalar(ctx, batch)
}

func (l *AirQualityDb) storeBatch(ctx context.Context, batch []*model.Record) error {
	return withDatabaseRetryInsert(func() error {
		sql, args := multiRowInsert(batch)
		err := pgx.BeginTxFunc(ctx, l.db, pgx.TxOptions{
			IsoLevel:       pgx.ReadCommitted,
			AccessMode:     pgx.ReadWrite,
			DeferrableMode: pgx.Deferrable,
		}, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, sql, args...)
			return err
		})
		if err != nil {
			l.metrics.RecordDBError(metrics.DBOperationBatchInsert)
		}
		return err
	})
}

// storeScalar inserts each record in its own transaction, skipping records
// that fail individually and continuing with the remainder.
func (l *AirQualityDb) storeScalar(ctx context.Context, batch []*model.Record) int {
	inserted := 0
	for _, r := range batch {
		err := withDatabaseRetryInsert(func() error {
			_, err := l.db.Exec(ctx, scalarInsertSql,
				r.Id, r.DeviceId, r.MonitorTime, r.Pm25, r.Pm10, r.Co, r.No2, r.So2, r.O3, r.CreatedAt, r.UpdatedAt)
			if err != nil {
				l.metrics.RecordDBError(metrics.DBOperationInsert)
			}
			return err
		})
		if err != nil {
			log.Warnf("Insert for record %s, device %s at %s failed with error %+v", r.Id, r.DeviceId, r.MonitorTime, err)
			continue
		}
		inserted++
	}
	l.metrics.RecordRowsInserted(metrics.InsertPathScalar, inserted)
	return inserted
}

// multiRowInsert renders the batch as a single parameterized multi-row
// insert.  Row order follows accumulation order.
func multiRowInsert(batch []*model.Record) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO air_quality_monitoring (" + insertColumns + ") VALUES ")
	args := make([]any, 0, len(batch)*11)
	for i, r := range batch {
		if i > 0 {
			sb.WriteString(",")
		}
		base := i * 11
		sb.WriteString("(")
		for j := 1; j <= 11; j++ {
			if j > 1 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, "$%d", base+j)
		}
		sb.WriteString(")")
		args = append(args, r.Id, r.DeviceId, r.MonitorTime, r.Pm25, r.Pm10, r.Co, r.No2, r.So2, r.O3, r.CreatedAt, r.UpdatedAt)
	}
	return sb.String(), args
}

// Executes a database mutation, retrying with capped backoff until it either
// succeeds or encounters a non-retryable error.
func withDatabaseRetryInsert(executeDb func() error) error {
	backOff := 1
	const maxBackoff = 60
	const maxRetries = 10
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = executeDb()
		if err == nil {
			return nil
		}
		if database.IsNetworkError(err) || database.IsRetryablePostgresError(err) {
			backOff = min(2*backOff, maxBackoff)
			log.Warnf("Retryable error encountered executing sql, will wait for %d seconds before retrying.  Error was %v", backOff, err)
			time.Sleep(time.Duration(backOff) * time.Second)
		} else {
			return err
		}
	}
	return errors.Wrapf(err, "gave up executing sql after %d retries", maxRetries)
}
