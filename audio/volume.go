package audio

import (
	"sort"
	"time"
)

type volumePoint struct {
	at time.Duration
	db float64
}

// VolumeTrack holds volume changes in timeline order. The zero value is
// 0 dB everywhere. Not safe for concurrent use.
type VolumeTrack struct {
	points []volumePoint
}

// Set changes the volume from at onwards. A point earlier than the
// last one means the timeline restarted, so history is dropped.
func (t *VolumeTrack) Set(db float64, at time.Duration) {
	if n := len(t.points); n > 0 && at < t.points[n-1].at {
		t.points = t.points[:0]
	}
	t.points = append(t.points, volumePoint{at: at, db: db})
}

// At returns the volume in effect at at. Points before it are dropped.
func (t *VolumeTrack) At(at time.Duration) float64 {
	i := sort.Search(len(t.points), func(i int) bool { return t.points[i].at > at })
	if i == 0 {
		return 0
	}
	db := t.points[i-1].db
	t.points = append(t.points[:0], t.points[i-1:]...)
	return db
}
