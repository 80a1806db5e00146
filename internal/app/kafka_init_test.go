package app

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestInitKafkaProducer_EmptyBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	for _, brokers := range []string{"", "  ", " , ,"} {
		producer, err := initKafkaProducer(brokers, logger)
		require.NoError(t, err)
		require.Nil(t, producer)
	}
}

func TestSplitBrokers(t *testing.T) {
	tests := []struct {
		name    string
		brokers string
		want    []string
	}{
		{name: "empty", brokers: "", want: nil},
		{name: "single", brokers: "localhost:9092", want: []string{"localhost:9092"}},
		{name: "trims spaces", brokers: " a:9092 , b:9092 ", want: []string{"a:9092", "b:9092"}},
		{name: "skips blanks", brokers: "a:9092,,b:9092,", want: []string{"a:9092", "b:9092"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, splitBrokers(tt.brokers))
		})
	}
}

func TestCloseKafka_NilProducer(t *testing.T) {
	closeKafka(nil, log.WithField("test", "kafka"))
}
