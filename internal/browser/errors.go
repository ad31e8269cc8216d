package browser

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
)

// connectionMarkers are substrings of errors chromedp surfaces when the
// browser process or its websocket is gone. String matching is the only
// option for most of these; chromedp does not export typed errors for them.
var connectionMarkers = []string{
	"websocket",
	"connection closed",
	"connection refused",
	"connection reset",
	"broken pipe",
	"browser closed",
	"target closed",
	"target crashed",
	"chrome failed to start",
	"context canceled",
}

// IsConnectionError reports whether err indicates the browser session itself
// is dead or unreachable, as opposed to a page-level failure. A deadline
// exceeded is never connection-class: that is the element wait running out,
// which the resolver maps to a not-found outcome.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range connectionMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
