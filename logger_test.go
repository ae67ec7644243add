package gptbatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggers(t *testing.T) {
	var l Logger = NewZapLogger(true)
	assert.NotNil(t, l)

	l = &noOpLogger{}
	assert.NotPanics(t, func() {
		l.Debugf("%d", 1)
		l.Error("x")
	})
}

func TestNewWithAPIDefaults(t *testing.T) {
	c := NewWithAPI(nil, Config{Concurrency: -1, StaggerBound: -1})

	assert.Equal(t, DefaultModel, c.Model())
	assert.Equal(t, 1, cap(c.pool.slots))
	assert.Zero(t, c.cfg.StaggerBound)
	assert.NotNil(t, c.logger)
	assert.False(t, c.admission.countsTokens())
}
