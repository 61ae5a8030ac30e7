package queue

import (
	"hash/fnv"
	"strconv"
	"time"
)

const backoffJitterPermille = 200

// Backoff is the retry delay policy applied by Fail when an item is requeued.
// A zero Base disables backoff so failed items are eligible immediately.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff mirrors the configuration defaults.
var DefaultBackoff = Backoff{Base: 5 * time.Second, Max: 10 * time.Minute}

// Delay returns min(Base*2^(attempt-1), Max) plus up to 20% jitter derived
// from the item id and attempt, so the same failure always yields the same delay.
func (b Backoff) Delay(id string, attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	limit := b.Max
	if limit < b.Base {
		limit = b.Base
	}
	delay := b.Base
	for i := 1; i < attempt; i++ {
		if delay >= limit/2 {
			delay = limit
			break
		}
		delay *= 2
	}
	if delay > limit {
		delay = limit
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(id + ":" + strconv.Itoa(attempt)))
	jitter := delay * time.Duration(h.Sum32()%(backoffJitterPermille+1)) / 1000
	return delay + jitter
}

// NextSchedule returns when a requeued item becomes eligible again.
func (b Backoff) NextSchedule(now time.Time, id string, attempt int) time.Time {
	return now.UTC().Add(b.Delay(id, attempt))
}
