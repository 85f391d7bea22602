package protocol

// SUBSCRIBE (client -> server). First message on the monitor connection, and
// can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Per-client send queue hint, clamped by the server.
	Buffer int `json:"buffer,omitempty"`

	// Optional condition-name filter; empty means all conditions.
	Conditions []string `json:"conditions,omitempty"`
}

// RUN_INFO (server -> client). Sent once after a valid SUBSCRIBE, and also
// served over HTTP as the bootstrap response.
type RunInfoMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	RunNumber  int    `json:"run_number"`
	Seed       int64  `json:"seed"`
	Days       int    `json:"days"`
	StartDate  string `json:"start_date"`
	Population int    `json:"population"`

	Conditions []ConditionInfo `json:"conditions"`
}

type ConditionInfo struct {
	Name             string   `json:"name"`
	States           []string `json:"states"`
	TransmissionMode string   `json:"transmission_mode"`
}

// DAY (server -> client). Sent at the end of every simulated day.
type DayMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	Day  int    `json:"day"`
	Date string `json:"date"`

	Conditions []ConditionCounts `json:"conditions"`
}

// ConditionCounts carries one day of one condition's counters; the slices
// are indexed by state, in the order RUN_INFO listed the states.
type ConditionCounts struct {
	Name    string `json:"name"`
	New     []int  `json:"new"`
	Current []int  `json:"current"`
	Total   []int  `json:"total"`

	// Mean secondary cases per case exposed this day; -1 means no cohort.
	RR float64 `json:"rr"`
}
