package worker

import (
	"github.com/sirupsen/logrus"

	"github.com/aqgenproject/aqgen/internal/aqgen/model"
)

// validateOrder checks that timestamps are non-decreasing within the batch
// and that the batch starts no earlier than the previously flushed batch
// ended.  Violations are diagnostics only: they are logged and the batch is
// still stored in full.
func (w *Worker) validateOrder(batch []*model.Record) {
	for i := 1; i < len(batch); i++ {
		if batch[i].MonitorTime.Before(batch[i-1].MonitorTime) {
			w.log.WithFields(logrus.Fields{
				"previousTime": batch[i-1].MonitorTime,
				"currentTime":  batch[i].MonitorTime,
			}).Warn("Timestamp order violation within batch")
		}
	}
	if w.hasFlushed && batch[0].MonitorTime.Before(w.lastFlushed) {
		w.log.WithFields(logrus.Fields{
			"previousBatchLastTime": w.lastFlushed,
			"currentBatchFirstTime": batch[0].MonitorTime,
		}).Warn("Timestamp order violation across batches")
	}
}
