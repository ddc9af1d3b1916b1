package stats

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/c360/micropipe/errors"
)

// ComponentStatistics is one closed reporting window of a component.
type ComponentStatistics struct {
	NodeID      string `json:"node_id"`
	PipelineID  string `json:"pipeline_id"`
	ComponentID string `json:"component_id"`
	NumMessages int32  `json:"num_messages"`
	StartTime   int64  `json:"start_time"`
	EndTime     int64  `json:"end_time"`
	MinDuration int32  `json:"min_duration"`
	MaxDuration int32  `json:"max_duration"`
	AvgDuration int32  `json:"avg_duration"`
	MinSize     int32  `json:"min_size"`
	MaxSize     int32  `json:"max_size"`
	AvgSize     int32  `json:"avg_size"`
	Errors      int32  `json:"errors"`
	// Window is the collector's sequence number for this window.
	Window int64 `json:"window"`
}

const fixedStatisticsLen = 11*4 + 3*8

// EncodedLen returns the exact size of Encode's output.
func (s ComponentStatistics) EncodedLen() int {
	return fixedStatisticsLen + len(s.NodeID) + len(s.PipelineID) + len(s.ComponentID)
}

// Encode serializes s in the statistics wire format.
func (s ComponentStatistics) Encode() []byte {
	buf := make([]byte, 0, s.EncodedLen())
	buf = binary.BigEndian.AppendUint32(buf, uint32(s.NumMessages))
	buf = binary.BigEndian.AppendUint64(buf, uint64(s.StartTime))
	buf = binary.BigEndian.AppendUint64(buf, uint64(s.EndTime))
	for _, v := range []int32{s.MinDuration, s.MaxDuration, s.AvgDuration, s.MinSize, s.MaxSize, s.AvgSize, s.Errors} {
		buf = binary.BigEndian.AppendUint32(buf, uint32(v))
	}
	for _, str := range []string{s.NodeID, s.PipelineID, s.ComponentID} {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(str)))
		buf = append(buf, str...)
	}
	buf = binary.BigEndian.AppendUint64(buf, uint64(s.Window))
	return buf
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s ComponentStatistics) MarshalBinary() ([]byte, error) {
	return s.Encode(), nil
}

// Decode parses the statistics wire format.
func Decode(data []byte) (ComponentStatistics, error) {
	var s ComponentStatistics
	err := s.UnmarshalBinary(data)
	return s, err
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *ComponentStatistics) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	var out ComponentStatistics

	fixed := []any{
		&out.NumMessages, &out.StartTime, &out.EndTime,
		&out.MinDuration, &out.MaxDuration, &out.AvgDuration,
		&out.MinSize, &out.MaxSize, &out.AvgSize, &out.Errors,
	}
	for _, field := range fixed {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return decodeError("ComponentStatistics", err)
		}
	}

	for _, dst := range []*string{&out.NodeID, &out.PipelineID, &out.ComponentID} {
		str, err := readString(r)
		if err != nil {
			return decodeError("ComponentStatistics", err)
		}
		*dst = str
	}

	if err := binary.Read(r, binary.BigEndian, &out.Window); err != nil {
		return decodeError("ComponentStatistics", err)
	}
	if r.Len() != 0 {
		return decodeError("ComponentStatistics", fmt.Errorf("%d trailing bytes", r.Len()))
	}

	*s = out
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var n int32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	if n < 0 || int(n) > r.Len() {
		return "", fmt.Errorf("string length %d out of range", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeError(kind string, err error) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidData, err), "stats", "Decode", "decode "+kind)
}
