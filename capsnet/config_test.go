package capsnet

import "testing"

func TestDefaultConfig(t *testing.T) {
	conf := DefaultConf(10)
	if !conf.IsValid() {
		t.Errorf("Expected Default Config to be correct")
	}
	if conf.convOut() != 12 {
		t.Errorf("Expected a 28x28 image to convolve to 12x12. Got %d", conf.convOut())
	}
	if conf.OutputSize() != 170 {
		t.Errorf("Expected 10 classes to need 170 outputs. Got %d", conf.OutputSize())
	}
}

var invalidConfs = []struct {
	name string
	conf Config
}{
	{"one class", Config{A: 1, B: 1, C: 1, D: 1, E: 1, R: 1, ImageSize: 28, BatchSize: 1}},
	{"no iterations", Config{A: 1, B: 1, C: 1, D: 1, E: 2, R: 0, ImageSize: 28, BatchSize: 1}},
	{"image smaller than the kernel", Config{A: 1, B: 1, C: 1, D: 1, E: 2, R: 1, ImageSize: 4, BatchSize: 1}},
	{"empty batch", Config{A: 1, B: 1, C: 1, D: 1, E: 2, R: 1, ImageSize: 28, BatchSize: 0}},
}

func TestInvalidConfig(t *testing.T) {
	for _, c := range invalidConfs {
		if c.conf.IsValid() {
			t.Errorf("%s: expected config to be invalid", c.name)
		}
	}
}
