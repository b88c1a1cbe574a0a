// Package agent is the conversational orchestrator. It classifies a prompt
// into an intent, routes it to DeFi analysis, bridging, balance queries,
// transfers or a plain answer, and drives the launchpad slot-filling and
// sentiment flows. Model output is recovered through the extract package and
// every exchange is written to the conversation repository.
package agent
