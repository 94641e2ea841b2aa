package kafka

import (
	"context"
	"testing"

	"github.com/dukex/microred/pkg/channels"
	"github.com/stretchr/testify/assert"
)

func TestBrokers(t *testing.T) {
	tests := []struct {
		name     string
		opts     channels.Options
		expected []string
	}{
		{
			name:     "host and port",
			opts:     channels.Options{Host: "localhost", Port: 9092},
			expected: []string{"localhost:9092"},
		},
		{
			name:     "broker list",
			opts:     channels.Options{Host: "k1:9092,k2:9092"},
			expected: []string{"k1:9092", "k2:9092"},
		},
		{
			name:     "no host",
			opts:     channels.Options{},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Brokers(tt.opts))
		})
	}
}

func TestDialer_NoBrokers(t *testing.T) {
	_, err := NewDialer(nil).Dial(context.Background(), channels.Options{}, channels.Handlers{})

	assert.ErrorIs(t, err, ErrNoBrokers)
}
