// Package onboarding implements the wallet-to-agent provisioning flow:
// deterministic-per-wallet agent identity generation, one-time link code
// issuance for binding an external messaging account, out-of-band
// confirmation intake, and final setup persistence. Records live in a
// pluggable Store (in-memory or MySQL); short-lived link codes live in a
// Registry (in-memory or Redis); confirmations may also arrive through a
// message queue consumed by the Listener.
package onboarding
