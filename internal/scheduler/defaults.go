package scheduler

import (
	"strconv"
	"sync/atomic"
	"time"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

var seq atomic.Uint64

// seqIDs is the fallback generator; production wiring passes UUIDv7s.
type seqIDs struct{}

func (seqIDs) NewID() (string, error) {
	return "job-" + strconv.FormatUint(seq.Add(1), 10), nil
}
