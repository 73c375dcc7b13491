package dedupe

import "time"

// Option applies a configuration option to the in-memory deduper.
type Option func(*inMemoryDeduper)

// WithMaxSize sets the maximum number of ids to keep. <= 0 means unbounded.
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryDeduper) {
		d.maxSize = maxSize
	}
}

// IndexOption configures a FingerprintIndex.
type IndexOption func(*FingerprintIndex)

// WithThreshold sets the cosine similarity at or above which two articles are the same event.
func WithThreshold(t float32) IndexOption {
	return func(ix *FingerprintIndex) {
		if t > 0 && t <= 1 {
			ix.threshold = t
		}
	}
}

// WithWindow sets how far back fingerprints are compared.
func WithWindow(w time.Duration) IndexOption {
	return func(ix *FingerprintIndex) {
		if w > 0 {
			ix.window = w
		}
	}
}

// WithCapacity bounds the number of fingerprints held.
func WithCapacity(n int) IndexOption {
	return func(ix *FingerprintIndex) {
		if n > 0 {
			ix.capacity = n
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) IndexOption {
	return func(ix *FingerprintIndex) {
		if now != nil {
			ix.now = now
		}
	}
}
