package model

// HostEntry is a single hosts-file entry the helper manages.
type HostEntry struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname"`
}

// HelperMessage is the request envelope exchanged with the privileged
// helper process over its local domain socket (spec §3/§4.9).
type HelperMessage struct {
	RequestID string         `json:"request_id"`
	AppID     string         `json:"app_id"`
	Command   HelperCommand  `json:"command"`
	Timestamp int64          `json:"timestamp"`
}

// HelperCommand is a tagged union over the command groups the helper
// accepts. Exactly one of the embedded pointers is non-nil.
type HelperCommand struct {
	Network *NetworkCommand `json:"network,omitempty"`
	Address *AddressCommand `json:"address,omitempty"`
	Host    *HostCommand    `json:"host,omitempty"`
	Service *ServiceCommand `json:"service,omitempty"`
	Ping    bool            `json:"ping,omitempty"`
}

// NetworkCommand manipulates loopback aliases.
type NetworkCommand struct {
	Op      string `json:"op"` // add | remove | list
	Address string `json:"address,omitempty"`
}

// AddressCommand manipulates allocated local-address bindings.
type AddressCommand struct {
	Op          string `json:"op"` // allocate | release | list
	ServiceName string `json:"service_name,omitempty"`
	Address     string `json:"address,omitempty"`
}

// HostCommand manipulates hosts-file entries.
type HostCommand struct {
	Op    string     `json:"op"` // add | remove | remove_all | list
	ID    string     `json:"id,omitempty"`
	Entry *HostEntry `json:"entry,omitempty"`
}

// ServiceCommand controls the helper's own lifecycle.
type ServiceCommand struct {
	Op string `json:"op"` // status | stop | restart
}

// HelperResponse echoes the request id and carries exactly one result kind.
type HelperResponse struct {
	RequestID string       `json:"request_id"`
	Result    HelperResult `json:"result"`
}

// ResultKind discriminates HelperResult's payload.
type ResultKind string

const (
	ResultSuccess            ResultKind = "success"
	ResultStringSuccess      ResultKind = "string_success"
	ResultListSuccess        ResultKind = "list_success"
	ResultAllocationsSuccess ResultKind = "allocations_success"
	ResultHostEntriesSuccess ResultKind = "host_entries_success"
	ResultError              ResultKind = "error"
)

// AddressAllocation is a (service_name, address) pair returned by the
// helper's address pool.
type AddressAllocation struct {
	ServiceName string `json:"service_name"`
	Address     string `json:"address"`
}

// HostEntryRecord pairs a hosts-file entry with the id that owns it.
type HostEntryRecord struct {
	ID    string    `json:"id"`
	Entry HostEntry `json:"entry"`
}

// HelperResult is the tagged union of response payloads described in §3.
type HelperResult struct {
	Kind        ResultKind          `json:"kind"`
	String      string              `json:"string,omitempty"`
	List        []string            `json:"list,omitempty"`
	Allocations []AddressAllocation `json:"allocations,omitempty"`
	HostEntries []HostEntryRecord   `json:"host_entries,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// Success builds a bare-success result.
func Success() HelperResult { return HelperResult{Kind: ResultSuccess} }

// StringSuccess builds a string-payload result.
func StringSuccess(s string) HelperResult { return HelperResult{Kind: ResultStringSuccess, String: s} }

// ListSuccess builds a list-payload result.
func ListSuccess(items []string) HelperResult {
	return HelperResult{Kind: ResultListSuccess, List: items}
}

// AllocationsSuccess builds an allocations-payload result.
func AllocationsSuccess(items []AddressAllocation) HelperResult {
	return HelperResult{Kind: ResultAllocationsSuccess, Allocations: items}
}

// HostEntriesSuccess builds a host-entries-payload result.
func HostEntriesSuccess(items []HostEntryRecord) HelperResult {
	return HelperResult{Kind: ResultHostEntriesSuccess, HostEntries: items}
}

// ErrorResult builds an error-payload result.
func ErrorResult(msg string) HelperResult { return HelperResult{Kind: ResultError, Error: msg} }
