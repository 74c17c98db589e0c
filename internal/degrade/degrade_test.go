package degrade

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFaults(t *testing.T) {
	boom := errors.New("broker unreachable")
	got := Faults(OK("cache.set"), Fault("enqueue", boom), OK("queue_depth"))

	assert.Len(t, got, 1)
	assert.Equal(t, "enqueue", got[0].Step)
	assert.True(t, got[0].Degraded())
	assert.Equal(t, "enqueue: degraded: broker unreachable", got[0].String())
	assert.Equal(t, "cache.set: ok", OK("cache.set").String())
}
