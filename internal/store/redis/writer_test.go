package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_GivesUpAfterConnectWait(t *testing.T) {
	start := time.Now()
	_, err := New(WriterConfig{Addr: "127.0.0.1:1", ConnectWait: 300 * time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestWriterConfigDefaults(t *testing.T) {
	assert.Equal(t, int64(defaultStreamMaxLen), streamMaxLen(0))
	assert.Equal(t, int64(minStreamMaxLen), streamMaxLen(5))
	assert.Equal(t, int64(5000), streamMaxLen(5000))
	assert.Equal(t, defaultLatestTTL, latestTTL(0))
	assert.Equal(t, time.Minute, latestTTL(time.Minute))
}
