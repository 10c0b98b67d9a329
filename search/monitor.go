package search

import "github.com/poiesic/gpthistory/core"

// ThresholdCount is the number of scores at or above a threshold.
type ThresholdCount struct {
	Threshold float64
	Count     int
}

// ScoreStats describes the raw score distribution of one ranking.
type ScoreStats struct {
	Count     int
	Min       float64
	Max       float64
	Mean      float64
	AtOrAbove []ThresholdCount
}

// SearchMonitor provides hooks to observe the ranking process.
// Implement this interface to track intermediate steps and results.
type SearchMonitor interface {
	Start(query string)
	AfterScoring(stats ScoreStats)
	// BelowThreshold receives the best rows when none reached the threshold.
	BelowThreshold(top []core.RankedResult)
	Finish(results []core.RankedResult)
	Failed(err error)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                       {}
func (n *noopMonitor) AfterScoring(_ ScoreStats)            {}
func (n *noopMonitor) BelowThreshold(_ []core.RankedResult) {}
func (n *noopMonitor) Finish(_ []core.RankedResult)         {}
func (n *noopMonitor) Failed(_ error)                       {}
