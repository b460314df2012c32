// Package social provides sentiment providers backed by a social search API and its on-disk archive.
package social

import (
	"github.com/StrathCole/marketpulse/pkg/server/sources"
)

func init() {
	sources.Register("sentiment.http", NewSearchProvider)
	sources.Register("sentiment.archive", NewArchiveProvider)
}
