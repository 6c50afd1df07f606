package transfer

// Progress is one event of a transfer's progress stream. Total is the
// declared byte length of the whole operation; Done never exceeds it.
type Progress struct {
	Done  uint64
	Total uint64
}

type config struct {
	chunkSize         int
	blockSizeOverride int
	progress          func(Progress)
}

type Option func(*config)

// WithChunkSize overrides how many bytes move per protocol command.
func WithChunkSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithProgress installs a callback fired after every completed chunk and
// once at the end. The stream is finite and not restartable; a new call
// starts again from zero.
func WithProgress(fn func(Progress)) Option {
	return func(c *config) {
		c.progress = fn
	}
}

func buildConfig(opts []Option) config {
	c := config{chunkSize: DefaultChunkSize}
	for _, o := range opts {
		o(&c)
	}
	return c
}

func (c *config) report(done, total uint64) {
	if c.progress != nil {
		c.progress(Progress{Done: done, Total: total})
	}
}
