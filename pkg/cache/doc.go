// Package cache provides optional Redis-backed caching of filings-search
// responses.
//
// The filings-search API serves point-in-time query results without cache
// validators, so entries are stored with a client-configured TTL rather than
// server-driven expiry. Keys are derived from the request method, path and
// body, making repeated identical queries (dashboards, polling jobs) hit the
// cache instead of spending rate limit budget.
//
// A cache hit bypasses request governance entirely: no outbound call is made,
// so no budget is consumed and no throttling applies.
package cache
