// Package web3 holds the network catalogue for agent deployments and a
// connectivity probe that validates the configured network against a live
// RPC endpoint. Deployments in this service are descriptive (network name
// plus derived address), so the package stays intentionally small.
package web3
