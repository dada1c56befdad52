package room

import "errors"

var (
	// ErrNoSession is returned when a room has no active session.
	ErrNoSession = errors.New("room has no active session")
	// ErrRateLimited is returned when a source submits again within its cooldown.
	ErrRateLimited = errors.New("source is cooling down")
	// ErrRegistryClosed is returned by Ensure after ReleaseAll.
	ErrRegistryClosed = errors.New("room registry closed")
)

// Skip reasons.
const (
	SkipStuck           = "stuck"
	SkipSynthesis       = "synthesis_failed"
	SkipSinkUnavailable = "sink_unavailable"
	SkipPlayback        = "playback_failed"
)
