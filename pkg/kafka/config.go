package kafka

import "time"

// ProducerConfig holds writer settings. Zero values are replaced with
// defaults by NewProducer.
type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	BatchSize    int
	BatchBytes   int
	BatchTimeout time.Duration
	Async        bool
	HashByKey    bool
}

// ProducerOption configures a Producer.
type ProducerOption func(*ProducerConfig)

// WithBrokers sets the broker addresses.
func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

// WithCompression selects the codec: gzip, snappy, lz4, or zstd.
func WithCompression(codec string) ProducerOption {
	return func(c *ProducerConfig) { c.Compression = codec }
}

// WithRequiredAcks sets the ack level. -1 waits for all replicas.
func WithRequiredAcks(acks int) ProducerOption {
	return func(c *ProducerConfig) { c.RequiredAcks = acks }
}

// WithMaxAttempts caps writer retries per batch.
func WithMaxAttempts(n int) ProducerOption {
	return func(c *ProducerConfig) { c.MaxAttempts = n }
}

// WithBatchSize sets the max messages per batch.
func WithBatchSize(n int) ProducerOption {
	return func(c *ProducerConfig) { c.BatchSize = n }
}

// WithBatchBytes sets the target batch size in bytes.
func WithBatchBytes(n int) ProducerOption {
	return func(c *ProducerConfig) { c.BatchBytes = n }
}

// WithBatchTimeout sets how long the writer lingers before flushing a
// partial batch.
func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(c *ProducerConfig) { c.BatchTimeout = d }
}

// WithTimeouts sets write and read timeouts on the writer.
func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		c.WriteTimeout = write
		c.ReadTimeout = read
	}
}

// WithAsync makes writes fire-and-forget.
func WithAsync(async bool) ProducerOption {
	return func(c *ProducerConfig) { c.Async = async }
}

// WithHashByKey routes messages by key hash so a symbol always lands
// on the same partition.
func WithHashByKey(on bool) ProducerOption {
	return func(c *ProducerConfig) { c.HashByKey = on }
}
