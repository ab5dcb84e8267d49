package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRunId(t *testing.T) {
	a := NewRunId()
	b := NewRunId()
	assert.Len(t, a, 26)
	assert.Equal(t, strings.ToLower(a), a)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b)
}
