package synth

import (
	"math"
	"math/rand"
	"time"

	"github.com/aqgenproject/aqgen/internal/aqgen/idgen"
	"github.com/aqgenproject/aqgen/internal/aqgen/model"
)

// Fixed sampling domain for one measurement channel.
type domain struct {
	min, max float64
	decimals int
}

// Channel domains match the ranges used by the upstream monitoring schema.
// All channels are 2-decimal except co, which carries 3.
var (
	pm25Domain = domain{0, 500, 2}
	pm10Domain = domain{0, 600, 2}
	coDomain   = domain{0, 15, 3}
	no2Domain  = domain{0, 200, 2}
	so2Domain  = domain{0, 500, 2}
	o3Domain   = domain{0, 300, 2}
)

// New synthesizes one record for the given device and time point.  The only
// side effect is obtaining an id from the allocator; an allocator failure
// propagates immediately and is never retried.
func New(allocator idgen.Allocator, deviceId string, monitorTime time.Time) (*model.Record, error) {
	id, err := allocator.Allocate()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &model.Record{
		Id:          id,
		DeviceId:    deviceId,
		MonitorTime: monitorTime,
		Pm25:        sample(pm25Domain),
		Pm10:        sample(pm10Domain),
		Co:          sample(coDomain),
		No2:         sample(no2Domain),
		So2:         sample(so2Domain),
		O3:          sample(o3Domain),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func sample(d domain) float64 {
	v := d.min + rand.Float64()*(d.max-d.min)
	p := math.Pow10(d.decimals)
	return math.Round(v*p) / p
}
