package emcaps

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorgonia/emcaps/capsnet"
	"github.com/gorgonia/emcaps/capsule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func TestSchedule(t *testing.T) {
	s := DefaultSchedule(10)
	assert.Equal(t, float32(1e-3), s.Lambda)
	assert.Equal(t, float32(0.2), s.Margin)

	s.Step()
	assert.InDelta(t, 1e-3+0.02, s.Lambda, 1e-6)
	assert.InDelta(t, 0.22, s.Margin, 1e-6)

	for i := 0; i < 1000; i++ {
		s.Step()
	}
	assert.True(t, s.Lambda >= 1 && s.Lambda < 1.02, "lambda stops growing once it reaches 1, got %v", s.Lambda)
	assert.True(t, s.Margin >= 0.9 && s.Margin < 0.92, "margin stops growing once it reaches 0.9, got %v", s.Margin)

	frozen := Schedule{Lambda: 0.5, Margin: 0.5}
	frozen.Step()
	assert.Equal(t, Schedule{Lambda: 0.5, Margin: 0.5}, frozen)

	resumed := ResumedSchedule(5)
	assert.Equal(t, float32(0.9), resumed.Lambda)
	assert.Equal(t, float32(0.8), resumed.Margin)
}

func TestStatistics(t *testing.T) {
	s := NewStatistics()
	sched := DefaultSchedule(2)
	s.Record(0, 0, sched, Combine(1, 0.1))
	sched.Step()
	s.Record(0, 1, sched, Combine(3, 0.3))
	s.Record(1, 0, sched, Combine(2, 0))

	mean, ok := s.Mean(0)
	require.True(t, ok)
	assert.InDelta(t, 2, mean.Class, 1e-6)
	assert.InDelta(t, 0.2, mean.Segmentation, 1e-6)
	assert.InDelta(t, 4, mean.Total, 1e-5)
	_, ok = s.Mean(5)
	assert.False(t, ok)

	filename := filepath.Join(t.TempDir(), "stats.csv")
	require.NoError(t, s.Dump(filename))
	f, err := os.Open(filename)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "Total Loss", records[0][6])
	assert.Equal(t, []string{"1", "0", "0.1010", "0.3000", "2.0000", "0.0000", "2.0000"}, records[3])
}

func TestBatchCheck(t *testing.T) {
	images := tensor.New(tensor.WithShape(2, 3, 4, 4), tensor.Of(tensor.Float32))
	ok := Batch{
		Images:   images,
		Targets:  []int{0, 1},
		Presence: tensor.New(tensor.WithShape(2, 3), tensor.Of(tensor.Float32)),
		OneHot:   tensor.New(tensor.WithShape(2, 3, 4, 4), tensor.Of(tensor.Float32)),
	}
	assert.NoError(t, ok.Check(3))

	bad := ok
	bad.Targets = []int{0}
	assert.True(t, capsule.IsConfigError(bad.Check(3)))

	bad = ok
	bad.OneHot = tensor.New(tensor.WithShape(2, 3, 4, 5), tensor.Of(tensor.Float32))
	assert.True(t, capsule.IsConfigError(bad.Check(3)))

	assert.True(t, capsule.IsConfigError(Batch{}.Check(3)))
}

func TestEvaluate(t *testing.T) {
	conf := capsnet.Config{A: 3, B: 2, C: 2, D: 2, E: 3, R: 2, ImageSize: 28, BatchSize: 2}
	net := capsnet.New(conf)
	if err := net.Init(); err != nil {
		t.Fatalf("%+v", err)
	}
	defer net.Close()

	shape := []int{conf.BatchSize, 3, conf.ImageSize, conf.ImageSize}
	b := Batch{
		Images:  tensor.New(tensor.WithShape(shape...), tensor.WithBacking(G.Uniform(0, 1)(tensor.Float32, shape...))),
		Targets: []int{0, 2},
		OneHot:  tensor.New(tensor.WithShape(conf.BatchSize, conf.E, conf.ImageSize, conf.ImageSize), tensor.Of(tensor.Float32)),
	}
	loss, err := Evaluate(net, b, DefaultSchedule(10))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.True(t, loss.Class >= 0)
	assert.True(t, loss.Segmentation > 0, "an all zero target never matches a distribution over classes")
	assert.InDelta(t, loss.Class+SegmentationWeight*loss.Segmentation, loss.Total, 1e-5)

	b.Targets = nil
	_, err = Evaluate(net, b, DefaultSchedule(10))
	assert.Error(t, err)

	b.Presence = tensor.New(tensor.WithShape(conf.BatchSize, conf.E), tensor.WithBacking([]float32{1, 0, 0, 0, 0, 1}))
	loss, err = Evaluate(net, b, DefaultSchedule(10))
	require.NoError(t, err)
	assert.True(t, loss.Class > 0)
}
