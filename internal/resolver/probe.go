package resolver

import (
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
)

// Probe attempts to read the VID from the selection page with a plain HTTP
// GET before a browser navigation is paid for. The catalog usually embeds
// the identifier server-side, so the probe satisfies most lookups; anything
// it cannot answer is promoted to the headless session, which stays
// authoritative for the not-found decision.
type Probe struct {
	userAgent string
	timeout   time.Duration
}

// NewProbe builds a Probe.
func NewProbe(userAgent string, timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Probe{userAgent: userAgent, timeout: timeout}
}

// FetchVID fetches pageURL and returns the first hidden input's value.
// ok is false when the page loaded but carried no identifier.
func (p *Probe) FetchVID(pageURL string) (vid string, ok bool, err error) {
	c := colly.NewCollector()
	if p.userAgent != "" {
		c.UserAgent = p.userAgent
	}
	c.SetRequestTimeout(p.timeout)

	c.OnHTML(vidSelector, func(e *colly.HTMLElement) {
		if vid == "" {
			vid = e.Attr("value")
		}
	})

	if err := c.Visit(pageURL); err != nil {
		return "", false, fmt.Errorf("probe fetch: %w", err)
	}
	return vid, vid != "", nil
}
