package catalog

import (
	"fmt"
	"net/url"
	"strings"
)

// URLBuilder constructs catalog page URLs. The selection page takes the
// series plus optional attributes as query parameters; the part-group page
// is the deep link a resolved VID points at.
type URLBuilder struct {
	// BaseURL is the catalog origin, e.g. "https://www.realoem.com".
	BaseURL string
	// Product and Archive are fixed selection-page parameters.
	Product string
	Archive string
}

const localePath = "/bmw/enUS"

// SelectURL builds the vehicle-selection page URL for a selection. Optional
// parameters are appended in a fixed order so URLs stay readable and
// comparable in logs; the catalog itself does not care about the order.
func (b URLBuilder) SelectURL(sel Selection) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s%s/select?product=%s&archive=%s&series=%s",
		strings.TrimRight(b.BaseURL, "/"), localePath,
		url.QueryEscape(b.Product), url.QueryEscape(b.Archive), url.QueryEscape(sel.Series))
	appendParam(&sb, "body", sel.Body)
	appendParam(&sb, "model", sel.Model)
	appendParam(&sb, "market", sel.Market)
	appendParam(&sb, "prod", sel.Production)
	appendParam(&sb, "engine", sel.Engine)
	appendParam(&sb, "steering", sel.Steering)
	return sb.String()
}

// PartGroupURL builds the deep link for a resolved VID.
func (b URLBuilder) PartGroupURL(vid string) string {
	return fmt.Sprintf("%s%s/partgrp?id=%s",
		strings.TrimRight(b.BaseURL, "/"), localePath, url.QueryEscape(vid))
}

func appendParam(sb *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(sb, "&%s=%s", name, url.QueryEscape(value))
}
