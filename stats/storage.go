// Package stats keeps monthly operational counters for the analysis pipeline and persists them to disk.
package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MonthlyStats represents pipeline counters for a specific month
type MonthlyStats struct {
	Analyses             int       `json:"analyses"`
	CacheHits            int       `json:"cache_hits"`
	CacheMisses          int       `json:"cache_misses"`
	ProxyFallbacks       int       `json:"proxy_fallbacks"`
	FetchFailures        int       `json:"fetch_failures"`
	RateLimited          int       `json:"rate_limited"`
	RealPerformance      int       `json:"real_performance"`
	EstimatedPerformance int       `json:"estimated_performance"`
	Findings             int       `json:"findings"`
	LastUpdated          time.Time `json:"last_updated"`
}

// Delta is added to the current month's counters
type Delta struct {
	Analyses             int
	CacheHits            int
	CacheMisses          int
	ProxyFallbacks       int
	FetchFailures        int
	RateLimited          int
	RealPerformance      int
	EstimatedPerformance int
	Findings             int
}

// Storage handles persistent storage of statistics
type Storage struct {
	mutex       sync.RWMutex
	stats       map[string]*MonthlyStats // key: "YYYY-MM"
	filePath    string
	lastWrite   time.Time
	writeBuffer chan struct{}
	done        chan struct{}
	stopped     chan struct{}
	closeOnce   sync.Once
	now         func() time.Time
	log         *logrus.Entry
}

// NewStorage creates a new statistics storage instance
func NewStorage(dataDir string, log *logrus.Entry) (*Storage, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Storage{
		stats:       make(map[string]*MonthlyStats),
		filePath:    filepath.Join(dataDir, "stats.json"),
		writeBuffer: make(chan struct{}, 1),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		now:         time.Now,
		log:         log,
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}

	go s.backgroundWriter()

	return s, nil
}

// load reads statistics from file
func (s *Storage) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	return json.Unmarshal(data, &s.stats)
}

// save writes statistics to file
func (s *Storage) save() error {
	s.mutex.RLock()
	data, err := json.Marshal(s.stats)
	s.mutex.RUnlock()

	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	// Write to temporary file first, then rename over the real one
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

func (s *Storage) saveAndLog() {
	if err := s.save(); err != nil {
		s.log.WithError(err).Warn("failed to persist stats")
	}
}

// backgroundWriter handles periodic writes to disk
func (s *Storage) backgroundWriter() {
	defer close(s.stopped)
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.writeBuffer:
			s.saveAndLog()
		case <-ticker.C:
			s.saveAndLog()
		case <-s.done:
			return
		}
	}
}

func (s *Storage) currentMonth() string {
	return s.now().Format("2006-01")
}

// requestWrite signals that a write to disk is needed
func (s *Storage) requestWrite() {
	select {
	case s.writeBuffer <- struct{}{}:
	default:
		// write already pending
	}
}

// Add adds d to the current month's counters
func (s *Storage) Add(d Delta) {
	month := s.currentMonth()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	stats, exists := s.stats[month]
	if !exists {
		stats = &MonthlyStats{}
		s.stats[month] = stats
	}

	stats.Analyses += d.Analyses
	stats.CacheHits += d.CacheHits
	stats.CacheMisses += d.CacheMisses
	stats.ProxyFallbacks += d.ProxyFallbacks
	stats.FetchFailures += d.FetchFailures
	stats.RateLimited += d.RateLimited
	stats.RealPerformance += d.RealPerformance
	stats.EstimatedPerformance += d.EstimatedPerformance
	stats.Findings += d.Findings
	stats.LastUpdated = s.now()

	// Request a write if enough time has passed
	if s.now().Sub(s.lastWrite) > time.Minute {
		s.requestWrite()
		s.lastWrite = s.now()
	}
}

// GetCurrentStats returns statistics for the current month
func (s *Storage) GetCurrentStats() MonthlyStats {
	month := s.currentMonth()

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if stats, exists := s.stats[month]; exists {
		return *stats
	}
	return MonthlyStats{}
}

// Cleanup removes statistics older than retainMonths, counting the current month
func (s *Storage) Cleanup(retainMonths int) {
	if retainMonths < 1 {
		retainMonths = 1
	}
	keep := make(map[string]bool, retainMonths)
	for i := 0; i < retainMonths; i++ {
		keep[s.now().AddDate(0, -i, 0).Format("2006-01")] = true
	}

	s.mutex.Lock()
	for key := range s.stats {
		if !keep[key] {
			delete(s.stats, key)
		}
	}
	s.mutex.Unlock()

	s.requestWrite()
	s.log.WithField("months", retainMonths).Debug("stats cleanup complete")
}

// GetMonthlyStats returns statistics for a specific month
func (s *Storage) GetMonthlyStats(yearMonth string) (MonthlyStats, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if stats, exists := s.stats[yearMonth]; exists {
		return *stats, true
	}
	return MonthlyStats{}, false
}

// GetAllMonths returns all months that have statistics, newest first
func (s *Storage) GetAllMonths() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	months := make([]string, 0, len(s.stats))
	for month := range s.stats {
		months = append(months, month)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))

	return months
}

// Shutdown stops the background writer and writes the final state
func (s *Storage) Shutdown() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		<-s.stopped
		err = s.save()
	})
	return err
}
