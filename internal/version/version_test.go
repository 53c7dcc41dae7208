package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	v := Get()
	assert.NotEmpty(t, v)
	assert.NotContains(t, v, "\n")
}

func TestString(t *testing.T) {
	t.Cleanup(func() { Commit = "" })

	Commit = ""
	assert.Equal(t, Get(), String())

	Commit = "abc1234"
	assert.Equal(t, Get()+" (abc1234)", String())
}
