package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDirectKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, DirectKey(7, 42), DirectKey(42, 7))
	assert.Equal(t, "7:42", DirectKey(42, 7))
	assert.Equal(t, "5:5", DirectKey(5, 5))
}

func TestDeriveState(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, StateDelivered, DeriveState(t0, time.Time{}), "unknown watermark never reads")
	assert.Equal(t, StateRead, DeriveState(t0, t0), "watermark equal to createdAt reads")
	assert.Equal(t, StateRead, DeriveState(t0, t0.Add(time.Second)))
	assert.Equal(t, StateDelivered, DeriveState(t0, t0.Add(-time.Second)))
}
