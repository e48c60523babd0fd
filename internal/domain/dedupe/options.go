package dedupe

// Option configures the memory deduper.
type Option func(*memoryDeduper)

// WithMaxSize bounds the number of remembered ids. Zero or less means unbounded.
func WithMaxSize(maxSize int) Option {
	return func(d *memoryDeduper) {
		d.maxSize = maxSize
	}
}
