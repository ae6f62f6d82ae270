// Package core holds the http side shared by the goodreads scrapers.
//
// every read-only scraping step has the same shape:
//  1. input -> request (url, query, headers)
//  2. request -> response, through the Fetcher's gate and retry policy
//  3. response -> output, usually goquery selectors or embedded json into a struct
//
// the Fetcher owns step 2 so the packages built on it (search, reviews)
// only declare steps 1 and 3. the one implied input is the fetcher's
// session state: its cookie jar and its challenge count.
package core
