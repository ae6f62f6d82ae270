package core

import (
	"bookreviews-backend/lib/restyutil"
	"bookreviews-backend/lib/telemetry"
)

var tracer = telemetry.Tracer("bookreviews.lib.scrapers.goodreads.core")
var meter = telemetry.Meter("bookreviews.lib.scrapers.goodreads.core")

var fetchOutcomes, _ = meter.Int64Counter("fetch_outcomes")
var cacheHits, _ = meter.Int64Counter("cache_hits")

var restyInstrumentOutput restyutil.InstrumentOutput

// SetRestyInstrumentOutput makes every fetcher created afterwards dump its
// http messages to `out` while debug logging is enabled.
func SetRestyInstrumentOutput(out restyutil.InstrumentOutput) {
	restyInstrumentOutput = out
}
