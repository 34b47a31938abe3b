// Package api exposes the REST surface of the onboarding daemon: agent
// identity generation, link code issuance, confirmation intake, status
// polling and setup finalization, plus the Prometheus metrics endpoint.
package api
