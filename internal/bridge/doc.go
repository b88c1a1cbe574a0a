// Package bridge moves native value between two registered chains. The lock
// leg sends the amount from the operator account to itself on the source
// chain and the release leg pays the recipient on the destination chain.
package bridge
