// SPDX-License-Identifier: GPL-3.0-or-later

package conduit

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSpanID returns a UUIDv7 identifying a span.
//
// Every [*Graph] gets one at construction and attaches it to all of its
// log events as graphID, so that logs from pipelines sharing a handler can
// be told apart. Hosts may also use it to tag their own capture sessions.
//
// This function panics if the system random number generator fails,
// which should only happen under extraordinary circumstances.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
