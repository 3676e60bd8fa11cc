package order

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStateMachine(t *testing.T) {
	all := []Status{StatusPlaced, StatusDelivering, StatusDelivered, StatusCancelled}
	allowed := map[[2]Status]bool{
		{StatusPlaced, StatusDelivering}:    true,
		{StatusPlaced, StatusCancelled}:     true,
		{StatusDelivering, StatusDelivered}: true,
		{StatusDelivering, StatusCancelled}: true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPlaced.Terminal())
	assert.False(t, Status("shipped").Valid())
	assert.Equal(t, "Out for delivery", StatusDelivering.Label())
}

func TestNewNumber(t *testing.T) {
	now := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)
	n := NewNumber(now)
	assert.Regexp(t, regexp.MustCompile(`^HN-20250309-[A-Z0-9]{6}$`), n)
	assert.NotEqual(t, n, NewNumber(now))
}
