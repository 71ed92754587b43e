package stream

// RoutingServer is one row of a routing table: a role (READ/WRITE/
// ROUTE) and the addresses that serve it.
type RoutingServer struct {
	Role      string
	Addresses []string
}

// RoutingTable is the result of a routing query, sourced either from
// a `dbms.routing.getRoutingTable` procedure RECORD (pre-V4.3) or
// directly from a ROUTE message's SUCCESS metadata (V4.3+).
type RoutingTable struct {
	TTL     int64
	Db      string
	Servers []RoutingServer
}

// RouteObserver adapts either a procedure-call result stream or a
// ROUTE message response into a RoutingTable (spec §4.7).
type RouteObserver struct {
	fromRecord bool
	table      RoutingTable
	onDone     func(RoutingTable)
	onFail     func(error)
	got        bool
}

// NewRouteObserverFromRecord builds an observer for the legacy
// procedure-call form: the routing table arrives as the single RECORD
// of a RUN+PULL_ALL against `dbms.routing.getRoutingTable`, with
// columns ttl and servers.
func NewRouteObserverFromRecord(db string, onDone func(RoutingTable), onFail func(error)) *RouteObserver {
	return &RouteObserver{fromRecord: true, table: RoutingTable{Db: db}, onDone: onDone, onFail: onFail}
}

// NewRouteObserverFromMetadata builds an observer for the V4.3+ ROUTE
// message form: the routing table arrives directly as SUCCESS
// metadata under the "rt" key.
func NewRouteObserverFromMetadata(onDone func(RoutingTable), onFail func(error)) *RouteObserver {
	return &RouteObserver{fromRecord: false, onDone: onDone, onFail: onFail}
}

// OnNext consumes the single RECORD in the from-record construction
// mode; a RECORD in from-metadata mode is a protocol error.
func (o *RouteObserver) OnNext(r Record) error {
	if !o.fromRecord {
		return ErrUnexpectedRecord
	}
	if ttl, ok := r.Get("ttl"); ok {
		if v, ok := ttl.(int64); ok {
			o.table.TTL = v
		}
	}
	if servers, ok := r.Get("servers"); ok {
		o.table.Servers = parseServers(servers)
	}
	o.got = true
	return nil
}

// OnCompleted finalizes the routing table. In from-metadata mode the
// table is parsed from meta["rt"]; in from-record mode the table was
// already populated by OnNext and this only delivers it.
func (o *RouteObserver) OnCompleted(meta map[string]any) error {
	if !o.fromRecord {
		rt, _ := meta["rt"].(map[string]any)
		o.table = parseRoutingTable(rt)
	}
	if o.onDone != nil {
		o.onDone(o.table)
	}
	return nil
}

// OnError delivers a terminal failure to resolve the routing table.
func (o *RouteObserver) OnError(err error) {
	if o.onFail != nil {
		o.onFail(err)
	}
}

func parseRoutingTable(rt map[string]any) RoutingTable {
	table := RoutingTable{}
	if ttl, ok := rt["ttl"].(int64); ok {
		table.TTL = ttl
	}
	if db, ok := rt["db"].(string); ok {
		table.Db = db
	}
	if servers, ok := rt["servers"]; ok {
		table.Servers = parseServers(servers)
	}
	return table
}

func parseServers(v any) []RoutingServer {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	servers := make([]RoutingServer, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		s := RoutingServer{}
		if role, ok := m["role"].(string); ok {
			s.Role = role
		}
		if addrs, ok := m["addresses"].([]any); ok {
			s.Addresses = make([]string, 0, len(addrs))
			for _, a := range addrs {
				if addr, ok := a.(string); ok {
					s.Addresses = append(s.Addresses, addr)
				}
			}
		}
		servers = append(servers, s)
	}
	return servers
}
