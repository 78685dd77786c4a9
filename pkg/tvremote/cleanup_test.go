package tvremote

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestBestEffort_LogsFailure(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	res := BestEffort(context.Background(), log, "disconnect-tv", func(context.Context) error {
		return errors.New("boom")
	})

	assert.False(t, res.OK())
	assert.EqualError(t, res.Err, "boom")
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"step":"disconnect-tv"`)
}

func TestBestEffort_RecoversPanic(t *testing.T) {
	res := BestEffort(context.Background(), zerolog.Nop(), "step", func(context.Context) error {
		panic("page crashed")
	})

	assert.False(t, res.OK())
	assert.Contains(t, res.Err.Error(), "page crashed")
}

func TestBestEffort_Success(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.InfoLevel)

	res := BestEffort(context.Background(), log, "step", func(context.Context) error { return nil })

	assert.True(t, res.OK())
	assert.Empty(t, buf.String())
}
