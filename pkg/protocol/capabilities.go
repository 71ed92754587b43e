package protocol

import (
	"github.com/orneryd/nornic-bolt-go/pkg/handshake"
	"github.com/orneryd/nornic-bolt-go/pkg/messages"
)

// atLeast reports whether v is the given major.minor or newer.
func atLeast(v handshake.Version, major, minor byte) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

// CapabilitiesFor derives the feature-gate set for a negotiated
// version from the version-change ladder in spec §4.10. Each gate
// turns on at the version that introduced it and stays on for every
// later version — "inheritance is a modelling convenience, not a
// requirement" (§4.10), expressed here as a flat, monotonic table
// instead of one type per version.
func CapabilitiesFor(v handshake.Version) messages.Capabilities {
	c := messages.Capabilities{}
	if atLeast(v, 3, 0) {
		c.TxConfig = true
	}
	if atLeast(v, 4, 0) {
		c.Db = true
		c.Reactive = true
	}
	if atLeast(v, 4, 1) {
		c.ServerSideRouting = true
	}
	if atLeast(v, 4, 3) {
		c.RouteMessage = true
	}
	if atLeast(v, 4, 4) {
		c.ImpersonatedUser = true
	}
	if atLeast(v, 5, 0) {
		c.ElementID = true
		c.UTCPatchMandatory = true
	}
	if atLeast(v, 5, 1) {
		c.SeparateLogon = true
	}
	if atLeast(v, 5, 2) {
		c.NotificationFilter = true
	}
	if atLeast(v, 5, 3) {
		c.BoltAgent = true
	}
	if atLeast(v, 5, 4) {
		c.Telemetry = true
	}
	if atLeast(v, 5, 7) {
		c.GQLErrorEnrichment = true
	}
	return c
}

// SupportsGoodbye reports whether GOODBYE exists on this version
// (added V2→V3 alongside HELLO/BEGIN/COMMIT/ROLLBACK).
func SupportsGoodbye(v handshake.Version) bool { return atLeast(v, 3, 0) }

// SupportsReactivePull reports whether PULL/DISCARD with n/qid exist
// (added V3→V4.0); earlier versions only have PULL_ALL/DISCARD_ALL.
func SupportsReactivePull(v handshake.Version) bool { return atLeast(v, 4, 0) }

// UTCPatchDefault reports whether DateTime values should use the
// UTC-patched wire tags by default for this version: mandatory from
// V5.0, optional (off unless separately negotiated via patch_bolt)
// before that.
func UTCPatchDefault(v handshake.Version) bool { return atLeast(v, 5, 0) }
