package aqdb

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqgenproject/aqgen/internal/aqgen/metrics"
	"github.com/aqgenproject/aqgen/internal/aqgen/model"
)

var baseTime, _ = time.Parse(time.RFC3339, "2024-01-01T00:00:00Z")

type execCall struct {
	sql  string
	args []any
}

// fakeDb satisfies Queryer.  Batch transactions fail with batchErr; scalar
// inserts fail for record ids listed in scalarErrs.
type fakeDb struct {
	batchErr   error
	scalarErrs map[string]error

	batchCalls  []execCall
	scalarCalls []execCall
}

func (f *fakeDb) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	f.scalarCalls = append(f.scalarCalls, execCall{sql: sql, args: arguments})
	id := arguments[0].(string)
	if err, ok := f.scalarErrs[id]; ok {
		return pgconn.CommandTag{}, err
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeDb) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return &fakeTx{db: f}, nil
}

type fakeTx struct {
	db        *fakeDb
	committed bool
}

func (t *fakeTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	if t.db.batchErr != nil {
		return pgconn.CommandTag{}, t.db.batchErr
	}
	t.db.batchCalls = append(t.db.batchCalls, execCall{sql: sql, args: arguments})
	return pgconn.CommandTag{}, nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	return nil
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, errors.New("not implemented") }
func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not implemented")
}
func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *fakeTx) Conn() *pgx.Conn                                               { return nil }

func testBatch(n int) []*model.Record {
	batch := make([]*model.Record, n)
	for i := 0; i < n; i++ {
		ts := baseTime.Add(time.Duration(i) * time.Second)
		batch[i] = &model.Record{
			Id:          "record-" + string(rune('a'+i)),
			DeviceId:    "MN00001",
			MonitorTime: ts,
			Pm25:        12.34,
			Pm10:        56.78,
			Co:          1.234,
			No2:         90.12,
			So2:         34.56,
			O3:          78.90,
			CreatedAt:   ts,
			UpdatedAt:   ts,
		}
	}
	return batch
}

func TestStoreBatchPath(t *testing.T) {
	db := &fakeDb{}
	loader := New(db, metrics.Get())

	inserted := loader.Store(context.Background(), testBatch(3))

	assert.Equal(t, 3, inserted)
	require.Len(t, db.batchCalls, 1)
	assert.Empty(t, db.scalarCalls)

	call := db.batchCalls[0]
	assert.Contains(t, call.sql, "INSERT INTO air_quality_monitoring")
	assert.Equal(t, 3, strings.Count(call.sql, "($"))
	assert.Contains(t, call.sql, "$33")
	assert.NotContains(t, call.sql, "$34")
	assert.Len(t, call.args, 33)
	// Row order follows accumulation order.
	assert.Equal(t, "record-a", call.args[0])
	assert.Equal(t, "record-b", call.args[11])
	assert.Equal(t, "record-c", call.args[22])
}

func TestStoreFallsBackToScalarInserts(t *testing.T) {
	db := &fakeDb{batchErr: errors.New("malformed record")}
	loader := New(db, metrics.Get())

	inserted := loader.Store(context.Background(), testBatch(3))

	assert.Equal(t, 3, inserted)
	require.Len(t, db.scalarCalls, 3)
	for i, call := range db.scalarCalls {
		assert.Contains(t, call.sql, "VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)")
		assert.Len(t, call.args, 11)
		assert.Equal(t, "record-"+string(rune('a'+i)), call.args[0])
	}
}

func TestStoreSkipsIndividuallyFailingRecords(t *testing.T) {
	// One bad record must not lose the rest of its batch.
	db := &fakeDb{
		batchErr:   errors.New("malformed record"),
		scalarErrs: map[string]error{"record-b": errors.New("value out of range")},
	}
	loader := New(db, metrics.Get())

	inserted := loader.Store(context.Background(), testBatch(3))

	assert.Equal(t, 2, inserted)
	assert.Len(t, db.scalarCalls, 3)
}

func TestStoreEmptyBatch(t *testing.T) {
	db := &fakeDb{}
	loader := New(db, metrics.Get())

	inserted := loader.Store(context.Background(), nil)

	assert.Equal(t, 0, inserted)
	assert.Empty(t, db.batchCalls)
	assert.Empty(t, db.scalarCalls)
}

func TestMultiRowInsertPlaceholders(t *testing.T) {
	sql, args := multiRowInsert(testBatch(2))
	assert.Contains(t, sql, "($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)")
	assert.Contains(t, sql, "($12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)")
	assert.Len(t, args, 22)
}
