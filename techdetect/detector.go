// Package techdetect classifies the software stack of a fetched page and derives its technical signals.
package techdetect

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/siteaudit/backend/fetcher"
	"github.com/siteaudit/backend/model"
)

// Detector merges the third-party lookup, the signature table and the embedded fingerprints.
type Detector struct {
	lookup        Lookup
	fingerprinter *fingerprinter
	log           *logrus.Entry
}

// Result is the output of one detection pass.
type Result struct {
	Technologies []model.Technology
	// LookupHits is the number of technologies returned by the third-party lookup.
	LookupHits int
}

// New builds a Detector. lookup may be nil. A fingerprint set that fails to load
// only disables that source.
func New(lookup Lookup, log *logrus.Entry) *Detector {
	fp, err := newFingerprinter()
	if err != nil {
		log.WithError(err).Warn("embedded fingerprints disabled")
	}
	return &Detector{lookup: lookup, fingerprinter: fp, log: log}
}

// Detect returns the merged technology list for page.
func (d *Detector) Detect(ctx context.Context, page *model.FetchedPage) Result {
	remote := safeLookup(ctx, d.lookup, fetcher.Domain(page.URL), d.log)
	local := detectSignatures(strings.ToLower(page.HTML), headerBlob(page.Headers))
	embedded := d.fingerprinter.detect(page)

	return Result{
		Technologies: Merge(remote, local, embedded),
		LookupHits:   len(remote),
	}
}
