package pager

import "errors"

// ErrClosed is returned by Pager operations invoked after Close.
var ErrClosed = errors.New("pager: closed")

// ErrCorrupt is returned when on-disk data fails a structural decode check
// (a truncated or otherwise undecodable node payload).
var ErrCorrupt = errors.New("pager: corrupt data")
