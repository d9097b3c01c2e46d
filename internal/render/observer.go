package render

import "time"

// Observer receives render lifecycle events, typically for metrics.
type Observer interface {
	PassStarted(kind Kind)
	PassFinished(kind Kind, stats Stats, elapsed time.Duration, err error)
	AssetMissing(kind Kind, role string)
}

type nopObserver struct{}

func (nopObserver) PassStarted(Kind)                               {}
func (nopObserver) PassFinished(Kind, Stats, time.Duration, error) {}
func (nopObserver) AssetMissing(Kind, string)                      {}
