// Package messages implements the versioned RequestMessage catalog
// (spec §4.6): factories for every Bolt request message and the
// transaction-metadata builder, gated by each negotiated protocol
// version's capabilities.
package messages

import "fmt"

// Capabilities describes which optional request features a
// negotiated protocol version supports. Each unsupported-but-requested
// feature raises a *CapabilityError synchronously, before any bytes
// are written (spec §7).
type Capabilities struct {
	TxConfig           bool // tx_timeout / tx_metadata in BEGIN/RUN
	Db                 bool // db in tx-metadata, multi-database
	ImpersonatedUser   bool // imp_user in tx-metadata (>= V4.4 only)
	NotificationFilter bool // notifications in HELLO/BEGIN/RUN (>= V5.2)
	SeparateLogon      bool // LOGON/LOGOFF split from HELLO (>= V5.1)
	BoltAgent          bool // bolt_agent in HELLO (>= V5.3)
	Telemetry          bool // TELEMETRY message (>= V5.4)
	ServerSideRouting  bool // routing flag in HELLO (>= V4.1)
	RouteMessage       bool // ROUTE message 0x66 (>= V4.3); below that, routing is a procedure call
	Reactive           bool // PULL/DISCARD with n/qid (>= V4.0); below that, PULL_ALL only
	ElementID          bool // element_id fields on graph types (>= V5.0)
	UTCPatchMandatory  bool // UTC datetime tags mandatory, not negotiated (>= V5.0)
	GQLErrorEnrichment bool // FAILURE GQL diagnostic enrichment (>= V5.7)
}

// CapabilityError is raised when a caller requests a feature the
// negotiated protocol version does not support. It is not fatal to
// the connection; the call simply fails before any bytes are written.
type CapabilityError struct {
	Feature string
	Version string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("messages: %s is not supported on Bolt protocol version %s", e.Feature, e.Version)
}

func capErr(version, feature string) error {
	return &CapabilityError{Feature: feature, Version: version}
}
