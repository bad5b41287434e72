// SPDX-License-Identifier: MIT

package pump

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/oakgate/oakgate/internal/cache"
	"github.com/oakgate/oakgate/internal/calib"
	"github.com/oakgate/oakgate/internal/frame"
	"github.com/oakgate/oakgate/internal/framesync"
	"github.com/oakgate/oakgate/internal/graph"
	"github.com/oakgate/oakgate/internal/queue"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func colorFrame(stream string, seq int64) *frame.ImgFrame {
	const w, h = 64, 48
	data := make([]byte, w*h*3)
	for i := range data {
		data[i] = byte(i)
	}
	return &frame.ImgFrame{
		Meta:   frame.Meta{Stream: stream, Seq: seq, DeviceTS: time.Now(), HostTS: time.Now()},
		Width:  w,
		Height: h,
		Type:   frame.TypeBGR888,
		Data:   data,
	}
}

func depthFrame(stream string, seq int64, mm uint16) *frame.ImgFrame {
	const w, h = 64, 48
	data := make([]byte, w*h*2)
	for i := 0; i < w*h; i++ {
		data[2*i] = byte(mm)
		data[2*i+1] = byte(mm >> 8)
	}
	return &frame.ImgFrame{
		Meta:   frame.Meta{Stream: stream, Seq: seq, DeviceTS: time.Now(), HostTS: time.Now()},
		Width:  w,
		Height: h,
		Type:   frame.TypeRaw16,
		Data:   data,
	}
}

func detectionBatch(stream string, seq int64) *frame.ImgDetections {
	return &frame.ImgDetections{
		Meta: frame.Meta{Stream: stream, Seq: seq, DeviceTS: time.Now(), HostTS: time.Now()},
		Detections: []frame.Detection{
			{Label: 5, Confidence: 0.91, XMin: 0.25, YMin: 0.25, XMax: 0.75, YMax: 0.75},
		},
	}
}

func testCalib() *calib.Data {
	return &calib.Data{
		BoardName: "TEST",
		Cameras: map[graph.BoardSocket]calib.Intrinsics{
			graph.SocketRight: {Width: 640, Height: 400, FX: 451.2, FY: 451.2, CX: 320, CY: 200},
		},
		Stereo: calib.Extrinsics{
			Rotation:    [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
			Translation: [3]float64{-7.5, 0, 0},
		},
	}
}

func runPump(t *testing.T, p *Pump, queues map[string]*queue.Queue) chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background(), queues) }()
	return done
}

func TestPumpPublishesColorFrames(t *testing.T) {
	c := cache.NewMemoryCache(64, 0)
	p := New(Options{}, c)

	frames, cancel, err := p.Broadcaster().Subscribe("rgb")
	require.NoError(t, err)
	defer cancel()

	q := queue.New("rgb", queue.Options{MaxSize: 4})
	done := runPump(t, p, map[string]*queue.Queue{"rgb": q})

	require.NoError(t, q.Put(context.Background(), colorFrame("rgb", 1)))

	select {
	case jpeg := <-frames:
		require.NotEmpty(t, jpeg)
		assert.Equal(t, []byte{0xff, 0xd8}, jpeg[:2], "payload should be a JPEG")
	case <-time.After(3 * time.Second):
		t.Fatal("no frame broadcast")
	}

	snap, ok := cache.Snapshots{Cache: c}.Snapshot("rgb")
	require.True(t, ok)
	assert.NotEmpty(t, snap)

	q.Close()
	require.NoError(t, <-done)
}

func TestPumpDepthChainEnrichesDetections(t *testing.T) {
	c := cache.NewMemoryCache(64, 0)
	p := New(Options{
		DepthMedianKernel: 3,
		DepthMinMM:        200,
		DepthMaxMM:        10000,
		SpatialEnabled:    true,
		NNConfidence:      0.25,
	}, c)
	p.SetCalibration(testCalib())

	annotated, cancel, err := p.Broadcaster().Subscribe(AnnotatedStream)
	require.NoError(t, err)
	defer cancel()

	qRGB := queue.New("rgb", queue.Options{MaxSize: 4})
	qDepth := queue.New("depth", queue.Options{MaxSize: 4})
	qNN := queue.New("nn", queue.Options{MaxSize: 4})
	done := runPump(t, p, map[string]*queue.Queue{"rgb": qRGB, "depth": qDepth, "nn": qNN})

	ctx := context.Background()
	require.NoError(t, qRGB.Put(ctx, colorFrame("rgb", 1)))
	require.NoError(t, qDepth.Put(ctx, depthFrame("depth", 1, 1000)))

	// Wait for both frames to land before the detection so the annotated
	// overlay and the spatial lookup have inputs to work with.
	snaps := cache.Snapshots{Cache: c}
	require.Eventually(t, func() bool {
		_, okColor := snaps.Snapshot("rgb")
		_, okDepth := snaps.Snapshot("depth")
		return okColor && okDepth
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, qNN.Put(ctx, detectionBatch("nn", 1)))

	require.Eventually(t, func() bool {
		res, ok := p.Detections().Latest()
		return ok && len(res.Detections.Detections) == 1
	}, 3*time.Second, 10*time.Millisecond)

	res, ok := p.Detections().Latest()
	require.True(t, ok)
	det := res.Detections.Detections[0]
	require.True(t, det.Spatial, "detection should carry spatial coordinates")
	assert.InDelta(t, 1000, det.SpatialZ, 50)

	select {
	case jpeg := <-annotated:
		assert.NotEmpty(t, jpeg)
	case <-time.After(3 * time.Second):
		t.Fatal("no annotated frame broadcast")
	}

	var cached struct {
		Detections *frame.ImgDetections `json:"Detections"`
	}
	found, err := snaps.Detections(&cached)
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, cached.Detections)
	assert.Len(t, cached.Detections.Detections, 1)

	qRGB.Close()
	qDepth.Close()
	qNN.Close()
	require.NoError(t, <-done)
}

func TestPumpSyncPairsDepthAndDetections(t *testing.T) {
	c := cache.NewMemoryCache(64, 0)
	p := New(Options{
		SpatialEnabled: true,
		NNConfidence:   0.25,
		SyncStreams:    []string{"depth", "nn"},
		SyncMode:       framesync.ModeSequence,
		SyncBuffer:     8,
	}, c)
	p.SetCalibration(testCalib())

	qDepth := queue.New("depth", queue.Options{MaxSize: 4})
	qNN := queue.New("nn", queue.Options{MaxSize: 4})
	done := runPump(t, p, map[string]*queue.Queue{"depth": qDepth, "nn": qNN})

	ctx := context.Background()
	require.NoError(t, qDepth.Put(ctx, depthFrame("depth", 7, 2000)))
	require.NoError(t, qNN.Put(ctx, detectionBatch("nn", 7)))

	require.Eventually(t, func() bool {
		res, ok := p.Detections().Latest()
		return ok && len(res.Detections.Detections) == 1 && res.Detections.Detections[0].Spatial
	}, 3*time.Second, 10*time.Millisecond)

	res, _ := p.Detections().Latest()
	assert.InDelta(t, 2000, res.Detections.Detections[0].SpatialZ, 100)

	qDepth.Close()
	qNN.Close()
	require.NoError(t, <-done)
}

func TestPumpTemporalFilterSmoothsDepth(t *testing.T) {
	c := cache.NewMemoryCache(64, 0)
	p := New(Options{TemporalAlpha: 0.5, TemporalFrames: 3}, c)

	q := queue.New("depth", queue.Options{MaxSize: 8})
	done := runPump(t, p, map[string]*queue.Queue{"depth": q})

	ctx := context.Background()
	require.NoError(t, q.Put(ctx, depthFrame("depth", 1, 1000)))
	require.NoError(t, q.Put(ctx, depthFrame("depth", 2, 2000)))
	q.Close()
	require.NoError(t, <-done)

	// Blend of 1000 and 2000 at alpha 0.5 should land between the inputs.
	latest := p.currentDepth()
	require.NotNil(t, latest)
	v, err := latest.Raw16At(10, 10)
	require.NoError(t, err)
	assert.Greater(t, v, uint16(1000))
	assert.Less(t, v, uint16(2000))
}

func TestBroadcasterLimitsSubscribers(t *testing.T) {
	b := NewBroadcaster(1)

	_, cancel, err := b.Subscribe("rgb")
	require.NoError(t, err)

	_, _, err = b.Subscribe("rgb")
	require.ErrorIs(t, err, ErrTooManySubscribers)

	cancel()
	_, cancel2, err := b.Subscribe("rgb")
	require.NoError(t, err)
	cancel2()
}

func TestBroadcasterDropsOldestOnLag(t *testing.T) {
	b := NewBroadcaster(4)
	ch, cancel, err := b.Subscribe("rgb")
	require.NoError(t, err)
	defer cancel()

	b.Publish("rgb", []byte("a"))
	b.Publish("rgb", []byte("b"))
	b.Publish("rgb", []byte("c"))

	assert.Equal(t, []byte("b"), <-ch)
	assert.Equal(t, []byte("c"), <-ch)
}

func TestBroadcasterCancelIsIdempotent(t *testing.T) {
	b := NewBroadcaster(2)
	_, cancel, err := b.Subscribe("rgb")
	require.NoError(t, err)
	cancel()
	cancel()
	assert.Zero(t, b.Subscribers("rgb"))
}
