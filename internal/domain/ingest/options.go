package ingest

// DefaultMaxBatchSize is the largest batch accepted unless overridden.
const DefaultMaxBatchSize = 10

// Option configures a Parser.
type Option func(*Parser)

// WithMaxBatchSize overrides the batch size upper bound. Values below 1 are ignored.
func WithMaxBatchSize(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxBatch = n
		}
	}
}

// WithLenientKinds treats every event value other than "start", including a
// missing event key, as an end event.
func WithLenientKinds() Option {
	return func(p *Parser) {
		p.lenient = true
	}
}
