package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinorUnits(t *testing.T) {
	// 19.99 * 100 is 1998.9999... as a float; truncation would lose a paisa.
	assert.Equal(t, int64(1999), minorUnits(19.99))
	assert.Equal(t, int64(11300), minorUnits(113.00))
	assert.Equal(t, int64(5), minorUnits(0.05))
	assert.Equal(t, int64(0), minorUnits(0))
}
