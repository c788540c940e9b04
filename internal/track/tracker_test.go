package track

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/dockwatch/internal/vision"
)

func newTestTracker() *Tracker {
	tr := NewTracker()
	n := 0
	tr.newID = func() string {
		n++
		return fmt.Sprintf("obj-%d", n)
	}
	return tr
}

func TestTracker_SingleMovingBox(t *testing.T) {
	tr := newTestTracker()
	start := time.Unix(1000, 0)

	for i := 0; i < 10; i++ {
		box := vision.BoundingBox{X: 100 + 3*i, Y: 50 + 2*i, Width: 20, Height: 20}
		tr.Update([]vision.BoundingBox{box}, start.Add(time.Duration(i)*100*time.Millisecond))
	}

	objs := tr.Objects()
	require.Len(t, objs, 1)
	assert.Equal(t, 10, objs[0].ConsecutiveFrames)
	assert.Equal(t, start, objs[0].FirstDetectedAt)
	assert.Equal(t, start.Add(900*time.Millisecond), objs[0].LastSeenAt)
	assert.False(t, objs[0].Loitering)
}

func TestTracker_NewObjectDefaults(t *testing.T) {
	tr := newTestTracker()
	now := time.Unix(2000, 0)

	stats := tr.Update([]vision.BoundingBox{{X: 1, Y: 2, Width: 30, Height: 40}}, now)
	assert.Equal(t, UpdateStats{Created: 1}, stats)

	objs := tr.Objects()
	require.Len(t, objs, 1)
	assert.Equal(t, "obj-1", objs[0].ID)
	assert.Equal(t, 1, objs[0].ConsecutiveFrames)
	assert.Equal(t, now, objs[0].FirstDetectedAt)
	assert.Equal(t, now, objs[0].LastSeenAt)
	assert.Equal(t, Rect{X: 1, Y: 2, Width: 30, Height: 40}, objs[0].Box)
}

func TestTracker_OutOfOrderTimestamps(t *testing.T) {
	tr := newTestTracker()
	t0 := time.Unix(1000, 0)
	box := vision.BoundingBox{X: 40, Y: 40, Width: 20, Height: 20}

	tr.Update([]vision.BoundingBox{box}, t0)
	stats := tr.Update([]vision.BoundingBox{box}, t0.Add(-2*time.Second))
	assert.Equal(t, 1, stats.Matched)

	objs := tr.Objects()
	require.Len(t, objs, 1)
	assert.Equal(t, 2, objs[0].ConsecutiveFrames)
	assert.Equal(t, t0, objs[0].FirstDetectedAt)
	assert.Equal(t, t0, objs[0].LastSeenAt)
	assert.False(t, objs[0].LastSeenAt.Before(objs[0].FirstDetectedAt))

	// time moving forward again still advances LastSeenAt
	tr.Update([]vision.BoundingBox{box}, t0.Add(time.Second))
	assert.Equal(t, t0.Add(time.Second), tr.Objects()[0].LastSeenAt)
}

func TestTracker_SmoothingHalvesTheStep(t *testing.T) {
	tr := newTestTracker()
	now := time.Unix(0, 0)

	tr.Update([]vision.BoundingBox{{X: 100, Y: 100, Width: 20, Height: 20}}, now)
	tr.Update([]vision.BoundingBox{{X: 110, Y: 104, Width: 30, Height: 20}}, now.Add(time.Second))

	objs := tr.Objects()
	require.Len(t, objs, 1)
	assert.Equal(t, Rect{X: 105, Y: 102, Width: 25, Height: 20}, objs[0].Box)
	assert.Equal(t, 2, objs[0].ConsecutiveFrames)
}

func TestTracker_ProximityGate(t *testing.T) {
	tests := []struct {
		name        string
		shift       int
		wantObjects int
	}{
		// 20x20 boxes: gate is 2.5 * 20 = 50px between centroids
		{name: "inside gate", shift: 49, wantObjects: 1},
		{name: "on gate", shift: 50, wantObjects: 2},
		{name: "outside gate", shift: 80, wantObjects: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTracker()
			now := time.Unix(0, 0)
			tr.Update([]vision.BoundingBox{{X: 0, Y: 0, Width: 20, Height: 20}}, now)
			tr.Update([]vision.BoundingBox{{X: tt.shift, Y: 0, Width: 20, Height: 20}}, now)
			assert.Equal(t, tt.wantObjects, tr.Len())
		})
	}
}

func TestTracker_PrefersLowerScore(t *testing.T) {
	tr := newTestTracker()
	now := time.Unix(0, 0)

	tr.Update([]vision.BoundingBox{
		{X: 0, Y: 0, Width: 20, Height: 20},
		{X: 60, Y: 0, Width: 20, Height: 20},
	}, now)
	require.Equal(t, 2, tr.Len())

	// closer to the second object
	stats := tr.Update([]vision.BoundingBox{{X: 45, Y: 0, Width: 20, Height: 20}}, now.Add(time.Second))
	assert.Equal(t, UpdateStats{Matched: 1}, stats)

	objs := tr.Objects()
	assert.Equal(t, 1, objs[0].ConsecutiveFrames)
	assert.Equal(t, 2, objs[1].ConsecutiveFrames)
}

func TestTracker_SizeBreaksDistanceTie(t *testing.T) {
	tr := newTestTracker()
	now := time.Unix(0, 0)

	// both centred at (50, 50)
	tr.Update([]vision.BoundingBox{{X: 40, Y: 40, Width: 20, Height: 20}}, now)
	tr.objects = append(tr.objects, &Object{
		ID: "big", Box: Rect{X: 30, Y: 30, Width: 40, Height: 40},
		FirstDetectedAt: now, LastSeenAt: now, ConsecutiveFrames: 1,
	})

	tr.Update([]vision.BoundingBox{{X: 31, Y: 31, Width: 38, Height: 38}}, now.Add(time.Second))

	objs := tr.Objects()
	assert.Equal(t, 1, objs[0].ConsecutiveFrames)
	assert.Equal(t, 2, objs[1].ConsecutiveFrames)
}

func TestTracker_EachObjectAbsorbsOneBoxPerFrame(t *testing.T) {
	tr := newTestTracker()
	now := time.Unix(0, 0)

	tr.Update([]vision.BoundingBox{{X: 0, Y: 0, Width: 20, Height: 20}}, now)
	stats := tr.Update([]vision.BoundingBox{
		{X: 2, Y: 0, Width: 20, Height: 20},
		{X: 4, Y: 0, Width: 20, Height: 20},
	}, now.Add(time.Second))

	assert.Equal(t, UpdateStats{Matched: 1, Created: 1}, stats)
	assert.Equal(t, 2, tr.Len())
}

func TestTracker_UnmatchedObjectsSurviveUntilSweep(t *testing.T) {
	tr := newTestTracker()
	t0 := time.Unix(0, 0)

	a := vision.BoundingBox{X: 10, Y: 10, Width: 20, Height: 20}
	b := vision.BoundingBox{X: 200, Y: 200, Width: 20, Height: 20}
	tr.Update([]vision.BoundingBox{a, b}, t0)

	a.X += 5
	t1 := t0.Add(100 * time.Millisecond)
	stats := tr.Update([]vision.BoundingBox{a}, t1)

	assert.Equal(t, UpdateStats{Matched: 1}, stats)
	require.Equal(t, 2, tr.Len())

	objs := tr.Objects()
	assert.Equal(t, t1, objs[0].LastSeenAt)
	assert.Equal(t, t0, objs[1].LastSeenAt)
}

func TestTracker_SweepRetentionModes(t *testing.T) {
	now := time.Unix(5000, 0)

	tests := []struct {
		mode      RetentionMode
		wantAlive int
	}{
		{mode: RetentionNormal, wantAlive: 0},
		{mode: RetentionPersistent, wantAlive: 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			tr := newTestTracker()
			tr.Update([]vision.BoundingBox{{X: 0, Y: 0, Width: 20, Height: 20}}, now.Add(-11*time.Second))

			removed := tr.Sweep(now, tt.mode.Window())
			assert.Equal(t, 1-tt.wantAlive, removed)
			assert.Equal(t, tt.wantAlive, tr.Len())
		})
	}
}

func TestTracker_SweepKeepsRecent(t *testing.T) {
	tr := newTestTracker()
	now := time.Unix(100, 0)

	tr.Update([]vision.BoundingBox{{X: 0, Y: 0, Width: 20, Height: 20}}, now.Add(-15*time.Second))
	tr.Update([]vision.BoundingBox{{X: 300, Y: 300, Width: 20, Height: 20}}, now.Add(-2*time.Second))

	assert.Equal(t, 1, tr.Sweep(now, RetentionNormal.Window()))
	objs := tr.Objects()
	require.Len(t, objs, 1)
	assert.Equal(t, "obj-2", objs[0].ID)
}

func TestTracker_Reset(t *testing.T) {
	tr := newTestTracker()
	tr.Update([]vision.BoundingBox{{X: 0, Y: 0, Width: 20, Height: 20}}, time.Now())
	tr.Reset()
	assert.Zero(t, tr.Len())
	assert.Empty(t, tr.Objects())
}

func TestParseRetentionMode(t *testing.T) {
	mode, err := ParseRetentionMode("persistent")
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, mode.Window())

	mode, err = ParseRetentionMode("")
	require.NoError(t, err)
	assert.Equal(t, RetentionNormal, mode)
	assert.Equal(t, 10*time.Second, mode.Window())

	_, err = ParseRetentionMode("forever")
	assert.Error(t, err)
}

func TestRect_Bounds(t *testing.T) {
	r := Rect{X: 10.4, Y: 10.6, Width: 19.5, Height: 20.2}
	assert.Equal(t, vision.BoundingBox{X: 10, Y: 11, Width: 20, Height: 20}, r.Bounds())
}
