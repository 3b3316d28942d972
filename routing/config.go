package routing

// Config configures a convolutional capsule layer.
type Config struct {
	In  int // input capsule types (B)
	Out int // output capsule types (C)

	// Kernel is the receptive field side. 0 means the full input: every input location feeds
	// a single 1x1 output location. A full receptive field requires Shared.
	Kernel int
	Stride int
	Iters  int // EM iterations, at least 1

	Coordinates bool // add normalized input coordinates to the votes
	Shared      bool // one transform per (input type, output type), regardless of kernel offset
}

// IsValid is a quick check that does not know about the input extent. NewGeometry does the full check.
func (conf Config) IsValid() bool {
	return conf.In >= 1 &&
		conf.Out >= 1 &&
		conf.Kernel >= 0 &&
		conf.Stride >= 1 &&
		conf.Iters >= 1 &&
		(conf.Kernel > 0 || conf.Shared)
}
