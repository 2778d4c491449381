package logging

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Statistics represents the collected request statistics
type Statistics struct {
	UniqueVisitors   map[string]time.Time `json:"uniqueVisitors"`   // IP -> Last Visit Time
	AnalysisRequests int                  `json:"analysisRequests"` // Total number of analysis requests
	ErrorCount       int                  `json:"errorCount"`
	PopularHosts     map[string]int       `json:"popularHosts"` // analyzed host -> count
	AverageLoadTime  float64              `json:"averageLoadTime"` // milliseconds
	TotalLoadTime    float64              `json:"totalLoadTime"`
	LastPersisted    time.Time            `json:"lastPersisted"`

	path    string
	devMode bool
	mutex   sync.RWMutex
}

// NewStatistics creates the statistics and loads any previously saved state from dataDir
func NewStatistics(dataDir string, devMode bool) (*Statistics, error) {
	s := &Statistics{
		UniqueVisitors: make(map[string]time.Time),
		PopularHosts:   make(map[string]int),
		path:           filepath.Join(dataDir, "statistics.json"),
		devMode:        devMode,
	}
	if err := s.Load(); err != nil {
		return s, err
	}
	return s, nil
}

// TrackVisitor records a unique visitor
func (s *Statistics) TrackVisitor(ip string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.UniqueVisitors[ip] = time.Now()
}

// analyzedHost reduces a submitted URL to its host. Local targets are not tracked.
func analyzedHost(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || host == "localhost" || host == "127.0.0.1" {
		return ""
	}
	return strings.TrimPrefix(host, "www.")
}

// TrackAnalysis records an analysis request
func (s *Statistics) TrackAnalysis(target string, loadTime float64, hasError bool) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.AnalysisRequests++
	if host := analyzedHost(target); host != "" {
		s.PopularHosts[host]++
	}
	if hasError {
		s.ErrorCount++
	}

	s.TotalLoadTime += loadTime
	s.AverageLoadTime = s.TotalLoadTime / float64(s.AnalysisRequests)
	return s.AnalysisRequests
}

func (s *Statistics) uniqueVisitorsLocked() int {
	count := 0
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, lastVisit := range s.UniqueVisitors {
		if lastVisit.After(cutoff) {
			count++
		}
	}
	return count
}

// GetUniqueVisitorsCount returns the number of unique visitors in the last 24 hours
func (s *Statistics) GetUniqueVisitorsCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.uniqueVisitorsLocked()
}

// HostCount is one entry of the popular-hosts ranking
type HostCount struct {
	Host  string `json:"host"`
	Count int    `json:"count"`
}

func (s *Statistics) popularHostsLocked(n int) []HostCount {
	ranked := make([]HostCount, 0, len(s.PopularHosts))
	for host, count := range s.PopularHosts {
		ranked = append(ranked, HostCount{host, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Host < ranked[j].Host
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// GetPopularHosts returns the top n most analyzed hosts
func (s *Statistics) GetPopularHosts(n int) []HostCount {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.popularHostsLocked(n)
}

func (s *Statistics) errorRateLocked() float64 {
	if s.AnalysisRequests == 0 {
		return 0
	}
	return float64(s.ErrorCount) / float64(s.AnalysisRequests) * 100
}

// Save persists the statistics to a file
func (s *Statistics) Save() error {
	s.mutex.Lock()
	s.LastPersisted = time.Now()
	data, err := json.Marshal(s)
	s.mutex.Unlock()
	if err != nil {
		return fmt.Errorf("could not encode statistics: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("could not create statistics directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("could not write statistics file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not replace statistics file: %w", err)
	}
	return nil
}

// Load reads the statistics from a file. A missing file is not an error.
func (s *Statistics) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("could not open statistics file: %w", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("could not decode statistics: %w", err)
	}
	if s.UniqueVisitors == nil {
		s.UniqueVisitors = make(map[string]time.Time)
	}
	if s.PopularHosts == nil {
		s.PopularHosts = make(map[string]int)
	}
	return nil
}

// GetStatistics returns a summary. Popular hosts are only included in development mode.
func (s *Statistics) GetStatistics() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := map[string]interface{}{
		"uniqueVisitors24h": s.uniqueVisitorsLocked(),
		"totalRequests":     s.AnalysisRequests,
		"errorRate":         s.errorRateLocked(),
		"averageLoadTime":   s.AverageLoadTime,
	}
	if s.devMode {
		out["popularHosts"] = s.popularHostsLocked(5)
	}
	return out
}
