package stats

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() *logrus.Entry {
	return logrus.NewEntry(logrus.New())
}

func TestStorage(t *testing.T) {
	tempDir := t.TempDir()

	storage, err := NewStorage(tempDir, testLog())
	require.NoError(t, err)

	t.Run("Add", func(t *testing.T) {
		storage.Add(Delta{Analyses: 1, CacheHits: 2, CacheMisses: 3, ProxyFallbacks: 4, RealPerformance: 1})
		stats := storage.GetCurrentStats()

		assert.Equal(t, 1, stats.Analyses)
		assert.Equal(t, 2, stats.CacheHits)
		assert.Equal(t, 3, stats.CacheMisses)
		assert.Equal(t, 4, stats.ProxyFallbacks)
		assert.Equal(t, 1, stats.RealPerformance)
		assert.Zero(t, stats.FetchFailures)
	})

	t.Run("Persistence", func(t *testing.T) {
		require.NoError(t, storage.Shutdown())
		require.NoError(t, storage.Shutdown())

		storage2, err := NewStorage(tempDir, testLog())
		require.NoError(t, err)
		defer storage2.Shutdown()

		assert.Equal(t, 2, storage2.GetCurrentStats().CacheHits)
	})

	t.Run("FileSize", func(t *testing.T) {
		info, err := os.Stat(filepath.Join(tempDir, "stats.json"))
		require.NoError(t, err)
		assert.Less(t, info.Size(), int64(1024))
		_, err = os.Stat(filepath.Join(tempDir, "stats.json.tmp"))
		assert.True(t, os.IsNotExist(err))
	})
}

func TestCleanup(t *testing.T) {
	storage, err := NewStorage(t.TempDir(), testLog())
	require.NoError(t, err)
	defer storage.Shutdown()

	now := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	storage.now = func() time.Time { return now }
	storage.Add(Delta{Analyses: 1})
	storage.stats["2024-04"] = &MonthlyStats{Analyses: 7}
	storage.stats["2024-02"] = &MonthlyStats{Analyses: 100}

	storage.Cleanup(2)

	assert.Equal(t, []string{"2024-05", "2024-04"}, storage.GetAllMonths())
	old, ok := storage.GetMonthlyStats("2024-04")
	require.True(t, ok)
	assert.Equal(t, 7, old.Analyses)
	_, ok = storage.GetMonthlyStats("2024-02")
	assert.False(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	storage, err := NewStorage(t.TempDir(), testLog())
	require.NoError(t, err)
	defer storage.Shutdown()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				storage.Add(Delta{CacheHits: 1, Findings: 2})
				storage.GetCurrentStats()
			}
		}()
	}
	wg.Wait()

	stats := storage.GetCurrentStats()
	assert.Equal(t, 1000, stats.CacheHits)
	assert.Equal(t, 2000, stats.Findings)
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stats.json"), []byte("{not json"), 0644))
	_, err := NewStorage(dir, testLog())
	assert.Error(t, err)
}
