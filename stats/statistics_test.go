package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/micropipe/errors"
)

func sampleStatistics() ComponentStatistics {
	return ComponentStatistics{
		NodeID:      "node-1",
		PipelineID:  "pipeline-a",
		ComponentID: "filter",
		NumMessages: 1200,
		StartTime:   1700000000000,
		EndTime:     1700000010000,
		MinDuration: 3,
		MaxDuration: 950,
		AvgDuration: 41,
		MinSize:     12,
		MaxSize:     4096,
		AvgSize:     230,
		Errors:      4,
		Window:      17,
	}
}

func TestComponentStatistics_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		stats ComponentStatistics
	}{
		{"populated", sampleStatistics()},
		{"zero", ComponentStatistics{}},
		{"negative", ComponentStatistics{NumMessages: -1, StartTime: -5, Window: -2, NodeID: "ü"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.stats.Encode()
			assert.Len(t, data, 11*4+3*8+len(tt.stats.NodeID)+len(tt.stats.PipelineID)+len(tt.stats.ComponentID))
			assert.Equal(t, tt.stats.EncodedLen(), len(data))

			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tt.stats, decoded)
		})
	}
}

func TestComponentStatistics_FieldOrder(t *testing.T) {
	data := ComponentStatistics{NumMessages: 1, StartTime: 2, ComponentID: "c"}.Encode()

	// numMessages leads, followed by the int64 start time
	assert.Equal(t, []byte{0, 0, 0, 1}, data[0:4])
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 2}, data[4:12])
}

func TestDecode_Invalid(t *testing.T) {
	data := sampleStatistics().Encode()

	tests := map[string][]byte{
		"empty":     nil,
		"truncated": data[:len(data)-3],
		"trailing":  append(append([]byte{}, data...), 0),
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(in)
			assert.ErrorIs(t, err, errors.ErrInvalidData)
		})
	}
}

func TestAggregatedComponentStatistics_Bytes(t *testing.T) {
	agg := NewAggregatedComponentStatistics("test", 123, 456, 654, 789, 987, 456, 908, 809, 989, 2)

	data := agg.ToBytes()
	assert.Len(t, data, 88)

	decoded, err := AggregatedFromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, agg, decoded)
	assert.Equal(t, int64(989), decoded.AvgSize)
	assert.Equal(t, int64(2), decoded.Errors)

	_, err = AggregatedFromBytes(data[:40])
	assert.ErrorIs(t, err, errors.ErrInvalidData)
}

func TestAggregatedComponentStatistics_Merge(t *testing.T) {
	var agg AggregatedComponentStatistics

	agg.Merge(ComponentStatistics{NumMessages: 2, StartTime: 100, EndTime: 200,
		MinDuration: 5, MaxDuration: 15, AvgDuration: 10, MinSize: 1, MaxSize: 9, AvgSize: 5, Errors: 1})
	agg.Merge(ComponentStatistics{Errors: 3})
	agg.Merge(ComponentStatistics{NumMessages: 6, StartTime: 200, EndTime: 300,
		MinDuration: 2, MaxDuration: 30, AvgDuration: 20, MinSize: 4, MaxSize: 20, AvgSize: 9})

	assert.Equal(t, int64(8), agg.NumMessages)
	assert.Equal(t, int64(4), agg.Errors)
	assert.Equal(t, int64(100), agg.StartTime)
	assert.Equal(t, int64(300), agg.EndTime)
	assert.Equal(t, int64(2), agg.MinDuration)
	assert.Equal(t, int64(30), agg.MaxDuration)
	assert.Equal(t, int64(17), agg.AvgDuration) // (2*10 + 6*20) / 8
	assert.Equal(t, int64(1), agg.MinSize)
	assert.Equal(t, int64(20), agg.MaxSize)
	assert.Equal(t, int64(8), agg.AvgSize) // (2*5 + 6*9) / 8
}
