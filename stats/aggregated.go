package stats

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// AggregatedComponentStatistics folds many windows of one component into a
// single summary with 64-bit counters.
type AggregatedComponentStatistics struct {
	ID          string `json:"id"`
	NumMessages int64  `json:"num_messages"`
	StartTime   int64  `json:"start_time"`
	EndTime     int64  `json:"end_time"`
	MinDuration int64  `json:"min_duration"`
	MaxDuration int64  `json:"max_duration"`
	AvgDuration int64  `json:"avg_duration"`
	MinSize     int64  `json:"min_size"`
	MaxSize     int64  `json:"max_size"`
	AvgSize     int64  `json:"avg_size"`
	Errors      int64  `json:"errors"`
}

// NewAggregatedComponentStatistics builds a summary from explicit values.
func NewAggregatedComponentStatistics(
	id string,
	numMessages, startTime, endTime,
	minDuration, maxDuration, avgDuration,
	minSize, maxSize, avgSize,
	errs int64,
) AggregatedComponentStatistics {
	return AggregatedComponentStatistics{
		ID:          id,
		NumMessages: numMessages,
		StartTime:   startTime,
		EndTime:     endTime,
		MinDuration: minDuration,
		MaxDuration: maxDuration,
		AvgDuration: avgDuration,
		MinSize:     minSize,
		MaxSize:     maxSize,
		AvgSize:     avgSize,
		Errors:      errs,
	}
}

func (a *AggregatedComponentStatistics) fields() []*int64 {
	return []*int64{
		&a.NumMessages, &a.StartTime, &a.EndTime,
		&a.MinDuration, &a.MaxDuration, &a.AvgDuration,
		&a.MinSize, &a.MaxSize, &a.AvgSize, &a.Errors,
	}
}

// ToBytes encodes as int32 len(id), id, then ten big-endian int64 values.
func (a AggregatedComponentStatistics) ToBytes() []byte {
	buf := make([]byte, 0, 4+len(a.ID)+10*8)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(a.ID)))
	buf = append(buf, a.ID...)
	for _, v := range a.fields() {
		buf = binary.BigEndian.AppendUint64(buf, uint64(*v))
	}
	return buf
}

// AggregatedFromBytes decodes the output of ToBytes.
func AggregatedFromBytes(data []byte) (AggregatedComponentStatistics, error) {
	r := bytes.NewReader(data)
	var out AggregatedComponentStatistics

	id, err := readString(r)
	if err != nil {
		return out, decodeError("AggregatedComponentStatistics", err)
	}
	out.ID = id

	for _, field := range out.fields() {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return AggregatedComponentStatistics{}, decodeError("AggregatedComponentStatistics", err)
		}
	}
	if r.Len() != 0 {
		return AggregatedComponentStatistics{}, decodeError("AggregatedComponentStatistics",
			fmt.Errorf("%d trailing bytes", r.Len()))
	}
	return out, nil
}

// Merge folds one window into the summary. Empty windows only contribute errors.
func (a *AggregatedComponentStatistics) Merge(s ComponentStatistics) {
	a.Errors += int64(s.Errors)
	if s.NumMessages == 0 {
		return
	}

	n := int64(s.NumMessages)
	if a.NumMessages == 0 {
		a.StartTime = s.StartTime
		a.EndTime = s.EndTime
		a.MinDuration, a.MaxDuration = int64(s.MinDuration), int64(s.MaxDuration)
		a.MinSize, a.MaxSize = int64(s.MinSize), int64(s.MaxSize)
		a.AvgDuration, a.AvgSize = int64(s.AvgDuration), int64(s.AvgSize)
		a.NumMessages = n
		return
	}

	total := a.NumMessages + n
	a.AvgDuration = (a.AvgDuration*a.NumMessages + int64(s.AvgDuration)*n) / total
	a.AvgSize = (a.AvgSize*a.NumMessages + int64(s.AvgSize)*n) / total
	a.StartTime = min(a.StartTime, s.StartTime)
	a.EndTime = max(a.EndTime, s.EndTime)
	a.MinDuration = min(a.MinDuration, int64(s.MinDuration))
	a.MaxDuration = max(a.MaxDuration, int64(s.MaxDuration))
	a.MinSize = min(a.MinSize, int64(s.MinSize))
	a.MaxSize = max(a.MaxSize, int64(s.MaxSize))
	a.NumMessages = total
}
