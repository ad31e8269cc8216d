package catalog

import "time"

// Record is a resolved VID together with the selection that produced it.
// Records are created once per distinct VID and never mutated afterwards,
// except for the LastAccessed recency stamp the cache maintains.
type Record struct {
	VID        string    `json:"vid"`
	Series     string    `json:"series"`
	Body       string    `json:"body,omitempty"`
	Model      string    `json:"model,omitempty"`
	Market     string    `json:"market,omitempty"`
	Production string    `json:"production,omitempty"`
	Engine     string    `json:"engine,omitempty"`
	Steering   string    `json:"steering,omitempty"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"created_at"`
	LastAccess time.Time `json:"last_accessed"`
}

// Stats summarizes the cache contents for the stats endpoint.
type Stats struct {
	TotalCached int64
	BySeries    map[string]int64
}
