// Package redis caches the social feed that backs sentiment analysis so the
// upstream account is not polled on every request. A Redis implementation is
// used when an address is configured and an in-process map otherwise.
package redis
