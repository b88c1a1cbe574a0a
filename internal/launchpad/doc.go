// Package launchpad deploys and mints the launchpad ERC-20 token. In onchain
// mode it signs transactions with the operator key against a registered chain.
// In relay mode it forwards requests to the external token service.
package launchpad
