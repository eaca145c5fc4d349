package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type (
	DBOperation string
	InsertPath  string
)

const (
	DBOperationInsert      DBOperation = "insert"
	DBOperationBatchInsert DBOperation = "batch_insert"

	InsertPathBatch  InsertPath = "batch"
	InsertPathScalar InsertPath = "scalar"
)

const AqGenMetricsPrefix = "aqgen_"

type Metrics struct {
	dbErrorsCounter  *prometheus.CounterVec
	rowsInserted     *prometheus.CounterVec
	recordsGenerated prometheus.Counter
}

var m = NewMetrics(AqGenMetricsPrefix)

func Get() *Metrics {
	return m
}

func NewMetrics(prefix string) *Metrics {
	dbErrorsCounterOpts := prometheus.CounterOpts{
		Name: prefix + "db_errors",
		Help: "Number of database errors grouped by database operation",
	}
	rowsInsertedOpts := prometheus.CounterOpts{
		Name: prefix + "rows_inserted",
		Help: "Number of rows successfully inserted grouped by insert path",
	}
	recordsGeneratedOpts := prometheus.CounterOpts{
		Name: prefix + "records_generated",
		Help: "Number of records synthesized",
	}
	return &Metrics{
		dbErrorsCounter:  promauto.NewCounterVec(dbErrorsCounterOpts, []string{"operation"}),
		rowsInserted:     promauto.NewCounterVec(rowsInsertedOpts, []string{"path"}),
		recordsGenerated: promauto.NewCounter(recordsGeneratedOpts),
	}
}

func (m *Metrics) RecordDBError(operation DBOperation) {
	m.dbErrorsCounter.With(map[string]string{"operation": string(operation)}).Inc()
}

func (m *Metrics) RecordRowsInserted(path InsertPath, count int) {
	m.rowsInserted.With(map[string]string{"path": string(path)}).Add(float64(count))
}

func (m *Metrics) RecordRecordsGenerated(count int) {
	m.recordsGenerated.Add(float64(count))
}
