package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToString(t *testing.T) {
	assert.Equal(t, "", ToString(nil))
	assert.Equal(t, "abc", ToString("abc"))
	assert.Equal(t, "abc", ToString([]byte("abc")))
	assert.Equal(t, "12345", ToString(float64(12345)))
	assert.Equal(t, "1.5", ToString(1.5))
	assert.Equal(t, "42", ToString(42))
}

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		name  string
		val   any
		empty bool
	}{
		{"nil", nil, true},
		{"empty string", "", true},
		{"blank string", "   ", true},
		{"text", "Hello", false},
		{"zero", 0, false},
		{"false", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.empty, IsEmpty(tt.val))
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(5, float64(5)))
	assert.True(t, Equal(int64(7), float32(7)))
	assert.True(t, Equal("a", []byte("a")))
	assert.True(t, Equal(true, true))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(5, "5"))
	assert.False(t, Equal(true, 1))
	assert.False(t, Equal("a", nil))
	assert.True(t, Equal(map[string]any{"k": 1.5}, map[string]any{"k": 1.5}))
	assert.False(t, Equal([]any{"a"}, []any{"b"}))
}
