// Package protocol defines the JSON messages spoken on the run monitor
// websocket. The monitor is read-only: clients subscribe and the server
// streams one message per simulated day.
package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeSubscribe = "SUBSCRIBE"
	TypeRunInfo   = "RUN_INFO"
	TypeDay       = "DAY"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
