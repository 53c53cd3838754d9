// Package crawler defines the domain types, error taxonomy, and shared policies
// used by the web search crawler: queries, results, responses, URL
// canonicalisation, retry/backoff, and host blocklists.
package crawler
