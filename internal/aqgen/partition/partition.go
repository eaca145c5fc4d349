package partition

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/aqgenproject/aqgen/internal/aqgen/model"
)

// Partition splits the requested time range into one contiguous sub-range per
// worker.  The union of the sub-ranges is exactly the requested range: no
// gaps, no overlaps, and per-worker point counts differing by at most one.
// If the range holds fewer points than there are workers, the surplus workers
// receive a valid empty assignment rather than an error.
//
// maxRecords > 0 caps the total number of records generated by truncating the
// point count to maxRecords/len(devices) before the split, so the cap is
// never exceeded and per-worker completeness accounting stays exact.
func Partition(r model.TimeRange, interval time.Duration, workers int, devices []string, maxRecords int64) ([]*model.WorkerAssignment, error) {
	if workers < 1 {
		return nil, errors.Errorf("worker count must be at least 1, got %d", workers)
	}
	if interval <= 0 {
		return nil, errors.Errorf("interval must be positive, got %s", interval)
	}
	if r.End.Before(r.Start) {
		return nil, errors.Errorf("range end %s is before range start %s", r.End, r.Start)
	}
	if len(devices) == 0 {
		return nil, errors.New("device list is empty")
	}

	totalPoints := int64(r.End.Sub(r.Start)/interval) + 1
	capped := false
	if maxRecords > 0 {
		maxPoints := maxRecords / int64(len(devices))
		if totalPoints > maxPoints {
			totalPoints = maxPoints
			capped = true
		}
	}

	base := totalPoints / int64(workers)
	remainder := totalPoints % int64(workers)

	assignments := make([]*model.WorkerAssignment, 0, workers)
	var offset int64
	for i := 0; i < workers; i++ {
		points := base
		if int64(i) < remainder {
			points++
		}
		assignment := &model.WorkerAssignment{
			WorkerId: i,
			Points:   points,
			Devices:  devices,
		}
		if points > 0 {
			start := r.Start.Add(time.Duration(offset) * interval)
			end := start.Add(time.Duration(points-1) * interval)
			if offset+points == totalPoints && !capped {
				// The final sub-range absorbs any rounding drift between the
				// last point and the requested end.
				end = r.End
			}
			assignment.SubRange = model.TimeRange{Start: start, End: end}
		}
		assignments = append(assignments, assignment)
		offset += points
	}
	return assignments, nil
}

// DeviceIds returns the fixed-width identifier list for the given device
// count: MN00001, MN00002, ...
func DeviceIds(count int) []string {
	devices := make([]string, count)
	for i := 0; i < count; i++ {
		devices[i] = fmt.Sprintf("MN%05d", i+1)
	}
	return devices
}
