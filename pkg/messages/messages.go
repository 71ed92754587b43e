package messages

import (
	"github.com/orneryd/nornic-bolt-go/pkg/graphtypes"
	"github.com/orneryd/nornic-bolt-go/pkg/structure"
)

// Message signatures (spec §4.6).
const (
	TagHello    byte = 0x01
	TagLogon    byte = 0x6A
	TagLogoff   byte = 0x6B
	TagGoodbye  byte = 0x02
	TagReset    byte = 0x0F
	TagRun      byte = 0x10
	TagPullAll  byte = 0x3F // same wire tag as TagPull; distinguished by arity
	TagPull     byte = 0x3F
	TagDiscard  byte = 0x2F
	TagBegin    byte = 0x11
	TagCommit   byte = 0x12
	TagRollback byte = 0x13
	TagRoute    byte = 0x66
	TagTelemetry byte = 0x54
)

// HelloOptions configures the HELLO message's metadata dict.
type HelloOptions struct {
	UserAgent         string
	Auth              map[string]any // merged in directly when !caps.SeparateLogon
	ServerSideRouting map[string]any
	PatchBolt         []string
	Notifications     map[string]any
	BoltAgent         map[string]any
}

// Hello builds the HELLO message (0x01). Auth is only embedded in the
// metadata dict on versions where LOGON/LOGOFF have not been split out
// (pre-5.1); on 5.1+ the caller sends a separate LOGON message and
// Auth here should be left nil.
func Hello(opts HelloOptions, caps Capabilities, version string) (*structure.Structure, error) {
	if opts.BoltAgent != nil && !caps.BoltAgent {
		return nil, capErr(version, "bolt_agent")
	}
	if opts.Notifications != nil && !caps.NotificationFilter {
		return nil, capErr(version, "notification filters")
	}

	meta := map[string]any{}
	if opts.UserAgent != "" {
		meta["user_agent"] = opts.UserAgent
	}
	if opts.Auth != nil && !caps.SeparateLogon {
		for k, v := range opts.Auth {
			meta[k] = v
		}
	}
	if opts.ServerSideRouting != nil && caps.ServerSideRouting {
		meta["routing"] = opts.ServerSideRouting
	}
	if len(opts.PatchBolt) > 0 {
		meta["patch_bolt"] = toAnySlice(opts.PatchBolt)
	}
	if opts.Notifications != nil {
		meta["notifications"] = opts.Notifications
	}
	if opts.BoltAgent != nil {
		meta["bolt_agent"] = opts.BoltAgent
	}
	return &structure.Structure{Tag: TagHello, Fields: []any{meta}}, nil
}

// Logon builds the LOGON message (0x6A), valid only from V5.1.
func Logon(auth map[string]any, caps Capabilities, version string) (*structure.Structure, error) {
	if !caps.SeparateLogon {
		return nil, capErr(version, "LOGON")
	}
	return &structure.Structure{Tag: TagLogon, Fields: []any{auth}}, nil
}

// Logoff builds the LOGOFF message (0x6B), valid only from V5.1.
func Logoff(caps Capabilities, version string) (*structure.Structure, error) {
	if !caps.SeparateLogon {
		return nil, capErr(version, "LOGOFF")
	}
	return &structure.Structure{Tag: TagLogoff, Fields: []any{}}, nil
}

// Goodbye builds the GOODBYE message (0x02), valid only from V3.
func Goodbye() *structure.Structure {
	return &structure.Structure{Tag: TagGoodbye, Fields: []any{}}
}

// Reset builds the RESET message (0x0F).
func Reset() *structure.Structure {
	return &structure.Structure{Tag: TagReset, Fields: []any{}}
}

// RunLegacy builds a pre-V3 RUN message: query and params only, no
// tx-metadata field.
func RunLegacy(query string, params map[string]any) (*structure.Structure, error) {
	if err := rejectGraphParams(params); err != nil {
		return nil, err
	}
	return &structure.Structure{Tag: TagRun, Fields: []any{query, paramsOrEmpty(params)}}, nil
}

// RunWithMetadata builds a V3+ RUN message: query, params, and a
// tx-metadata dict built via BuildTxMetadata.
func RunWithMetadata(query string, params map[string]any, txMeta map[string]any) (*structure.Structure, error) {
	if err := rejectGraphParams(params); err != nil {
		return nil, err
	}
	return &structure.Structure{Tag: TagRun, Fields: []any{query, paramsOrEmpty(params), txMeta}}, nil
}

// PullAll builds the pre-V4 PULL_ALL message: empty fields, same wire
// tag as Pull.
func PullAll() *structure.Structure {
	return &structure.Structure{Tag: TagPullAll, Fields: []any{}}
}

// Pull builds the V4+ PULL message with a fetch size and optional
// stream id.
func Pull(n int64, qid *int64) *structure.Structure {
	meta := map[string]any{"n": n}
	if qid != nil {
		meta["qid"] = *qid
	}
	return &structure.Structure{Tag: TagPull, Fields: []any{meta}}
}

// Discard builds the V4+ DISCARD message with a count and optional
// stream id.
func Discard(n int64, qid *int64) *structure.Structure {
	meta := map[string]any{"n": n}
	if qid != nil {
		meta["qid"] = *qid
	}
	return &structure.Structure{Tag: TagDiscard, Fields: []any{meta}}
}

// Begin builds the BEGIN message (0x11) carrying tx-metadata.
func Begin(txMeta map[string]any) *structure.Structure {
	return &structure.Structure{Tag: TagBegin, Fields: []any{txMeta}}
}

// Commit builds the COMMIT message (0x12).
func Commit() *structure.Structure {
	return &structure.Structure{Tag: TagCommit, Fields: []any{}}
}

// Rollback builds the ROLLBACK message (0x13).
func Rollback() *structure.Structure {
	return &structure.Structure{Tag: TagRollback, Fields: []any{}}
}

// RouteOptions configures the ROUTE message, whose shape differs
// between V4.3 ({routing_context, bookmarks, db}) and V4.4+
// ({routing_context, bookmarks, {db, imp_user}}).
type RouteOptions struct {
	RoutingContext   map[string]any
	Bookmarks        []string
	Db               string
	ImpersonatedUser string
}

// Route builds the ROUTE message (0x66), valid only from V4.3.
func Route(opts RouteOptions, caps Capabilities, version string) (*structure.Structure, error) {
	if !caps.RouteMessage {
		return nil, capErr(version, "ROUTE message")
	}
	if opts.ImpersonatedUser != "" && !caps.ImpersonatedUser {
		return nil, capErr(version, "impersonated user")
	}

	fields := []any{opts.RoutingContext, toAnySlice(opts.Bookmarks)}
	if opts.ImpersonatedUser != "" || caps.ImpersonatedUser {
		dbField := map[string]any{}
		if opts.Db != "" {
			dbField["db"] = opts.Db
		}
		if opts.ImpersonatedUser != "" {
			dbField["imp_user"] = opts.ImpersonatedUser
		}
		fields = append(fields, dbField)
	} else if opts.Db != "" {
		fields = append(fields, opts.Db)
	} else {
		fields = append(fields, nil)
	}
	return &structure.Structure{Tag: TagRoute, Fields: fields}, nil
}

// Telemetry builds the TELEMETRY message (0x54), valid only from
// V5.4.
func Telemetry(api int64, caps Capabilities, version string) (*structure.Structure, error) {
	if !caps.Telemetry {
		return nil, capErr(version, "TELEMETRY")
	}
	return &structure.Structure{Tag: TagTelemetry, Fields: []any{map[string]any{"api": api}}}, nil
}

// TxMetadataOptions are the inputs to BuildTxMetadata (spec §4.6,
// §3.8). Only keys with meaningful values are emitted.
type TxMetadataOptions struct {
	Bookmarks        []string
	TxTimeoutMillis  *int64
	TxMetadata       map[string]any
	Db               string
	ImpersonatedUser string
	ReadMode         bool // emit mode: 'r' only when true
	Notifications    map[string]any
}

// BuildTxMetadata builds the tx-metadata dict shared by BEGIN and
// RUN-with-metadata, gated by caps. Capability violations are
// returned as *CapabilityError.
func BuildTxMetadata(opts TxMetadataOptions, caps Capabilities, version string) (map[string]any, error) {
	meta := map[string]any{}

	if len(opts.Bookmarks) > 0 {
		meta["bookmarks"] = toAnySlice(opts.Bookmarks)
	}

	if opts.TxTimeoutMillis != nil || len(opts.TxMetadata) > 0 {
		if !caps.TxConfig {
			return nil, capErr(version, "transaction configuration")
		}
	}
	if opts.TxTimeoutMillis != nil {
		meta["tx_timeout"] = *opts.TxTimeoutMillis
	}
	if len(opts.TxMetadata) > 0 {
		meta["tx_metadata"] = opts.TxMetadata
	}

	if opts.Db != "" {
		if !caps.Db {
			return nil, capErr(version, "database selection")
		}
		meta["db"] = opts.Db
	}

	if opts.ImpersonatedUser != "" {
		if !caps.ImpersonatedUser {
			return nil, capErr(version, "impersonated user")
		}
		meta["imp_user"] = opts.ImpersonatedUser
	}

	if opts.ReadMode {
		meta["mode"] = "r"
	}

	if len(opts.Notifications) > 0 {
		if !caps.NotificationFilter {
			return nil, capErr(version, "notification filters")
		}
		meta["notifications"] = opts.Notifications
	}

	return meta, nil
}

func rejectGraphParams(params map[string]any) error {
	for k, v := range params {
		if graphtypes.IsGraphValue(v) {
			return &UnsupportedParameterError{Key: k}
		}
	}
	return nil
}

// UnsupportedParameterError is raised when a query parameter is a
// graph value (Node/Relationship/Path/...), which cannot be sent to
// the server (spec §9 Open Question; DESIGN.md documents the chosen
// policy of rejecting uniformly across every protocol version).
type UnsupportedParameterError struct {
	Key string
}

func (e *UnsupportedParameterError) Error() string {
	return "messages: parameter \"" + e.Key + "\" is a graph value and cannot be sent to the server"
}

func paramsOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func toAnySlice(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
