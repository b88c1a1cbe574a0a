// Package web3 wraps EVM chain access for the agent: chain definitions loaded
// from YAML, a signer built from a hex private key, ether unit conversion and
// the Client interface implemented by the ethereum subpackage. Clients cover
// balance queries, native transfers, contract deployment, bound contract calls,
// log subscriptions and batched raw transactions.
package web3
