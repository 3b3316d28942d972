package capsnet

// Config configures the capsule network.
type Config struct {
	A int // conv1 output channels
	B int // primary capsule types
	C int // convcaps1 capsule types
	D int // convcaps2 capsule types
	E int // number of classes
	R int // EM iterations

	ImageSize int // images are ImageSize x ImageSize, 3 channels
	BatchSize int
}

// DefaultConf is the configuration the network was designed around: 32 channels and types
// at every level and 3 EM iterations over 28x28 images.
func DefaultConf(numClasses int) Config {
	return Config{
		A: 32,
		B: 32,
		C: 32,
		D: 32,
		E: numClasses,
		R: 3,

		ImageSize: 28,
		BatchSize: 16,
	}
}

func (conf Config) IsValid() bool {
	return conf.A >= 1 &&
		conf.B >= 1 &&
		conf.C >= 1 &&
		conf.D >= 1 &&
		conf.E >= 2 &&
		conf.R >= 1 &&
		conf.BatchSize >= 1 &&
		conf.ImageSize >= convKernel
}

// OutputSize is the length of the per batch element class vector: 16 pose values then one activation per class.
func (conf Config) OutputSize() int { return conf.E*16 + conf.E }

// convOut is the side of the feature grid produced by the convolution stage.
func (conf Config) convOut() int { return (conf.ImageSize-convKernel)/convStride + 1 }
