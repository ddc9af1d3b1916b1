package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_CopiesBody(t *testing.T) {
	body := []byte("This is a simple test message")
	msg := New(body, 42)

	body[0] = 'X'
	assert.Equal(t, "This is a simple test message", string(msg.Body))
	assert.Equal(t, int64(42), msg.Timestamp)
	assert.Equal(t, 29, msg.Size())
}

func TestClone_IsIndependent(t *testing.T) {
	msg := FromString("abc", 7)
	cp := msg.Clone()

	cp.Body[0] = 'z'
	assert.Equal(t, "abc", string(msg.Body))
	assert.Equal(t, msg.Timestamp, cp.Timestamp)
}

func TestNow_UsesWallClock(t *testing.T) {
	before := time.Now().UnixMilli()
	msg := Now(nil)
	after := time.Now().UnixMilli()

	assert.GreaterOrEqual(t, msg.Timestamp, before)
	assert.LessOrEqual(t, msg.Timestamp, after)
	assert.Nil(t, msg.Body)
	assert.Equal(t, msg.Timestamp, msg.Time().UnixMilli())
}

func TestString(t *testing.T) {
	assert.Equal(t, "Message{size=3, timestamp=7}", FromString("abc", 7).String())
}
