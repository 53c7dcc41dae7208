package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestInit(t *testing.T) {
	t.Cleanup(func() { Init(false, nil) })

	var buf bytes.Buffer
	Init(true, &buf)
	assert.True(t, DebugEnabled())
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	log.Debug().Str("agent", "intake").Msg("invoke")
	assert.Contains(t, buf.String(), "invoke")
	assert.Contains(t, buf.String(), "agent=intake")

	buf.Reset()
	Init(false, &buf)
	log.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
}

func TestComponent(t *testing.T) {
	t.Cleanup(func() { Init(false, nil) })

	var buf bytes.Buffer
	Init(false, &buf)
	Component("pipeline").Info().Msg("stage complete")
	assert.Contains(t, buf.String(), "component=pipeline")

	buf.Reset()
	Init(false, &buf)
	Component("store").Warn().Msg("reopened")
	assert.Contains(t, buf.String(), "component=store", "component loggers follow re-initialization")
}
