// SPDX-License-Identifier: GPL-3.0-or-later

package conduit

import "time"

// DefaultMaxHops is the default value of [Config.MaxHops].
const DefaultMaxHops = 1024

// Config holds common configuration for a [*Graph].
//
// Pass this to [NewGraph] to pre-wire dependencies.
// All fields have sensible defaults set by [NewConfig].
type Config struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// MaxHops bounds the number of hops of a single entry call. A
	// traversal exceeding it is dropped with [ErrHopLimit].
	//
	// Set by [NewConfig] to [DefaultMaxHops].
	MaxHops int

	// Metrics receives engine counters.
	//
	// Set by [NewConfig] to [DefaultMetrics].
	Metrics Metrics

	// NodePrealloc is the number of nodes allocated upfront.
	//
	// Set by [NewConfig] to zero.
	NodePrealloc int

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		ErrClassifier: DefaultErrClassifier,
		MaxHops:       DefaultMaxHops,
		Metrics:       DefaultMetrics(),
		NodePrealloc:  0,
		TimeNow:       time.Now,
	}
}
