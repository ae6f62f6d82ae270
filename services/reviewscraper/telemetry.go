package reviewscraper

import "bookreviews-backend/lib/telemetry"

var tracer = telemetry.Tracer("bookreviews.services.reviewscraper")
var meter = telemetry.Meter("bookreviews.services.reviewscraper")

var booksProcessed, _ = meter.Int64Counter("books_processed")
