// SPDX-License-Identifier: GPL-3.0-or-later

package conduit

import (
	"errors"

	"github.com/bassosimone/errclass"
)

// ErrClassifier classifies errors into categorical strings for analysis.
//
// Implementations map errors to short, descriptive labels (e.g., "EFLOWEXISTS",
// "ENOROUTE") that end up in the errClass field of structured log events.
type ErrClassifier interface {
	Classify(err error) string
}

// ErrClassifierFunc adapts a function to the [ErrClassifier] interface.
//
// This allows using simple functions as classifiers:
//
//	cfg.ErrClassifier = ErrClassifierFunc(errclass.New)
type ErrClassifierFunc func(error) string

var _ ErrClassifier = ErrClassifierFunc(nil)

// Classify implements [ErrClassifier].
func (f ErrClassifierFunc) Classify(err error) string {
	return f(err)
}

// Labels used by [DefaultErrClassifier] for the engine errors.
const (
	EPOOL       = "EPOOL"
	EFLOWEXISTS = "EFLOWEXISTS"
	ENOROUTE    = "ENOROUTE"
	EPHASE      = "EPHASE"
	EHOPLIMIT   = "EHOPLIMIT"
	ERELEASED   = "ERELEASED"
	EKEYTYPE    = "EKEYTYPE"
)

var engineErrClasses = []struct {
	err   error
	label string
}{
	{ErrPoolExhausted, EPOOL},
	{ErrFlowExists, EFLOWEXISTS},
	{ErrNoRoute, ENOROUTE},
	{ErrUnexpectedPhase, EPHASE},
	{ErrHopLimit, EHOPLIMIT},
	{ErrReleasedNode, ERELEASED},
	{ErrKeyType, EKEYTYPE},
}

// DefaultErrClassifier labels the engine errors and delegates everything
// else to [errclass.New]. A nil error maps to the empty string.
var DefaultErrClassifier = ErrClassifierFunc(func(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range engineErrClasses {
		if errors.Is(err, entry.err) {
			return entry.label
		}
	}
	return errclass.New(err)
})
