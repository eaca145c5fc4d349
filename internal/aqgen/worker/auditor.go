package worker

import (
	"github.com/sirupsen/logrus"
)

// ExpectedCount is the number of records the worker's assignment should
// produce when nothing fails: one record per device per time point.
func (w *Worker) ExpectedCount() int64 {
	return w.assignment.Points * int64(len(w.assignment.Devices))
}

// Discrepancy returns expected minus actually-inserted records.  Zero means
// the partition is complete.  Only meaningful once the worker has stopped.
func (w *Worker) Discrepancy() int64 {
	return w.ExpectedCount() - w.stats.InsertedCount()
}

// audit compares produced-vs-expected counts at partition completion.  A
// mismatch is logged with full context; no repair or re-generation is
// attempted.
func (w *Worker) audit() {
	expected := w.ExpectedCount()
	actual := w.stats.InsertedCount()
	if expected != actual {
		w.log.WithFields(logrus.Fields{
			"expected":      expected,
			"actual":        actual,
			"subRangeStart": w.assignment.SubRange.Start,
			"subRangeEnd":   w.assignment.SubRange.End,
			"points":        w.assignment.Points,
		}).Warn("Record count discrepancy detected")
		return
	}
	w.log.Infof("Partition complete, all %d records persisted", actual)
}
