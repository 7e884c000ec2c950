package kafkax

import "github.com/segmentio/kafka-go"

// NewWriter returns a topic-less writer (each message names its topic) with
// hash balancing so events for one aggregate stay ordered within a partition.
func NewWriter(brokers []string) *kafka.Writer {
	return kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Balancer: &kafka.Hash{},
	})
}
