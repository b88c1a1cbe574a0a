// Package api exposes the HTTP surface of the gateway: the conversational
// endpoints (/chat, /launchpadChat, /sentimentAnalysis), token launch and
// mint, social posting, the asynchronous task API under /api/v1 and the
// Prometheus /metrics endpoint.
package api
