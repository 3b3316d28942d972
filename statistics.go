package emcaps

import (
	"encoding/csv"
	"os"
	"strconv"
)

// SegmentationWeight is how much the segmentation loss counts in the total loss.
const SegmentationWeight = 10

type Statistics struct {
	Epochs  []int
	Steps   []int
	Lambdas []float32
	Margins []float32
	Losses  []Loss
}

func makeStatistics() Statistics {
	return Statistics{
		Epochs:  make([]int, 0, 64),
		Steps:   make([]int, 0, 64),
		Lambdas: make([]float32, 0, 64),
		Margins: make([]float32, 0, 64),
		Losses:  make([]Loss, 0, 64),
	}
}

// NewStatistics returns empty statistics.
func NewStatistics() *Statistics {
	s := makeStatistics()
	return &s
}

// Combine weighs the class and segmentation losses into a total.
func Combine(class, segmentation float32) Loss {
	return Loss{
		Class:        class,
		Segmentation: segmentation,
		Total:        class + SegmentationWeight*segmentation,
	}
}

// Record appends the outcome of one training step.
func (s *Statistics) Record(epoch, step int, sched Schedule, loss Loss) {
	s.Epochs = append(s.Epochs, epoch)
	s.Steps = append(s.Steps, step)
	s.Lambdas = append(s.Lambdas, sched.Lambda)
	s.Margins = append(s.Margins, sched.Margin)
	s.Losses = append(s.Losses, loss)
}

// Mean returns the mean loss of an epoch. ok is false if nothing was recorded for it.
func (s *Statistics) Mean(epoch int) (mean Loss, ok bool) {
	var count int
	for i, e := range s.Epochs {
		if e != epoch {
			continue
		}
		l := s.Losses[i]
		mean.Class += l.Class
		mean.Segmentation += l.Segmentation
		mean.Total += l.Total
		count++
	}
	if count == 0 {
		return mean, false
	}
	mean.Class /= float32(count)
	mean.Segmentation /= float32(count)
	mean.Total /= float32(count)
	return mean, true
}

func (s *Statistics) Dump(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write([]string{"Epoch", "Step", "Lambda", "Margin", "Class Loss", "Segmentation Loss", "Total Loss"}); err != nil {
		return err
	}
	records := make([][]string, 0, len(s.Losses))
	for i, l := range s.Losses {
		records = append(records, []string{
			strconv.Itoa(s.Epochs[i]),
			strconv.Itoa(s.Steps[i]),
			formatFloat(s.Lambdas[i]),
			formatFloat(s.Margins[i]),
			formatFloat(l.Class),
			formatFloat(l.Segmentation),
			formatFloat(l.Total),
		})
	}
	if err := w.WriteAll(records); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func formatFloat(f float32) string { return strconv.FormatFloat(float64(f), 'f', 4, 32) }
