package reviews

import "bookreviews-backend/lib/telemetry"

var tracer = telemetry.Tracer("bookreviews.lib.scrapers.goodreads.reviews")
var meter = telemetry.Meter("bookreviews.lib.scrapers.goodreads.reviews")

var reviewsCollected, _ = meter.Int64Counter("reviews_collected")
var reviewsDropped, _ = meter.Int64Counter("reviews_dropped")
var pagesFailed, _ = meter.Int64Counter("pages_failed")
