package convert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	mime  string
	delay time.Duration
	err   error
	out   string
}

func (b *stubBackend) Supports(mimeType string) bool { return mimeType == b.mime }
func (b *stubBackend) Convert(ctx context.Context, content []byte, mimeType, filename string) (string, error) {
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return b.out, b.err
}

func TestConvertFallsBackToPlainTextPassthrough(t *testing.T) {
	c := New(nil, time.Second, 0)
	result := c.Convert(context.Background(), []byte("hello"), "text/plain", "a.txt")
	require.Equal(t, OutcomeConverted, result.Outcome)
	assert.Equal(t, "hello", result.Markdown)
}

func TestConvertReportsUnsupportedForUnknownBinaryMime(t *testing.T) {
	c := New(nil, time.Second, 0)
	result := c.Convert(context.Background(), []byte{0x00, 0x01}, "application/octet-stream", "a.bin")
	assert.Equal(t, OutcomeUnsupported, result.Outcome)
}

func TestConvertSkipsOversizedContent(t *testing.T) {
	c := New(nil, time.Second, 4)
	result := c.Convert(context.Background(), []byte("too long"), "text/plain", "a.txt")
	assert.Equal(t, OutcomeSkippedTooLarge, result.Outcome)
}

func TestConvertTimesOutSlowBackend(t *testing.T) {
	c := New([]Backend{&stubBackend{mime: "application/pdf", delay: 100 * time.Millisecond}}, 10*time.Millisecond, 0)
	result := c.Convert(context.Background(), []byte("x"), "application/pdf", "a.pdf")
	assert.Equal(t, OutcomeFailed, result.Outcome)
}

func TestConvertPropagatesBackendError(t *testing.T) {
	c := New([]Backend{&stubBackend{mime: "application/pdf", err: errors.New("boom")}}, time.Second, 0)
	result := c.Convert(context.Background(), []byte("x"), "application/pdf", "a.pdf")
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Contains(t, result.Detail, "boom")
}
