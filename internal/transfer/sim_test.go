package transfer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinfoil-queue/internal/domain"
)

func fastSim(t *testing.T) *SimEngine {
	t.Helper()
	return NewSimEngine(SimConfig{
		DataDir:      t.TempDir(),
		ConnectDelay: time.Millisecond,
		Tick:         time.Millisecond,
		StepPercent:  25,
	})
}

func TestSimResolveSearchRequest(t *testing.T) {
	engine := fastSim(t)

	meta, err := engine.Resolve(context.Background(), Request{
		Name:    "Zelda",
		Source:  domain.SourceSearchCommand,
		Command: "/dl_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Zelda", meta.Name)
	assert.Equal(t, "Zelda", meta.Filename)
	assert.Equal(t, int64(simDefaultSize), meta.TotalBytes)
	assert.Equal(t, 1, meta.Files)
}

func TestSimDownloadReportsMonotonicProgress(t *testing.T) {
	engine := fastSim(t)
	req := Request{ID: "dl-1", Name: "Zelda", Source: domain.SourceSearchCommand, TotalBytes: 1 << 20}

	var (
		mu       sync.Mutex
		percents []int
	)
	err := engine.Download(context.Background(), req, func(m domain.Metrics) Signal {
		mu.Lock()
		percents = append(percents, m.Percent)
		mu.Unlock()
		return Proceed
	})
	require.NoError(t, err)

	require.NotEmpty(t, percents)
	assert.Equal(t, 100, percents[len(percents)-1])
	for i := 1; i < len(percents); i++ {
		assert.GreaterOrEqual(t, percents[i], percents[i-1])
	}

	manifest := filepath.Join(engine.stagingDir(req), "manifest.txt")
	data, err := os.ReadFile(manifest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name=Zelda")
}

func TestSimDownloadHoldDoesNotAdvance(t *testing.T) {
	engine := fastSim(t)
	req := Request{ID: "dl-2", Name: "Zelda", TotalBytes: 1 << 20}

	calls := 0
	var offered []int
	err := engine.Download(context.Background(), req, func(m domain.Metrics) Signal {
		calls++
		offered = append(offered, m.Percent)
		if calls < 4 {
			return Hold
		}
		return Stop
	})
	require.NoError(t, err)

	// held ticks re-offer the same step instead of advancing
	assert.Equal(t, []int{25, 25, 25, 25}, offered)

	_, statErr := os.Stat(engine.stagingDir(req))
	assert.True(t, os.IsNotExist(statErr), "stopped download must not stage files")
}

func TestSimDownloadStopsOnCancel(t *testing.T) {
	engine := NewSimEngine(SimConfig{DataDir: t.TempDir(), Tick: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := engine.Download(ctx, Request{ID: "dl-3", Name: "Zelda"}, func(domain.Metrics) Signal {
		return Proceed
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimUploadWithoutStorageReturnsStagingDir(t *testing.T) {
	engine := fastSim(t)
	req := Request{ID: "dl-4", Name: "Zelda", TotalBytes: 1 << 20}

	require.NoError(t, engine.Download(context.Background(), req, func(domain.Metrics) Signal {
		return Proceed
	}))

	location, err := engine.Upload(context.Background(), req, func(domain.Metrics) Signal {
		return Proceed
	})
	require.NoError(t, err)
	assert.Equal(t, engine.stagingDir(req), location)
}
