package vehicle

import "fmt"

type Event uint8

const (
	EventInvalid Event = iota
	EventConnecting
	EventConnected
	EventDisconnected
	EventHeartbeatFirst
	EventHeartbeatRestored
	EventHeartbeatTimeout
	// firmware family changed
	EventType
	EventFollowStart
	EventFollowStop
)

func (e Event) String() string {
	switch e {
	case EventConnecting:
		return "connecting"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventHeartbeatFirst:
		return "heartbeat-first"
	case EventHeartbeatRestored:
		return "heartbeat-restored"
	case EventHeartbeatTimeout:
		return "heartbeat-timeout"
	case EventType:
		return "type"
	case EventFollowStart:
		return "follow-start"
	case EventFollowStop:
		return "follow-stop"
	}
	return fmt.Sprintf("Event(%d)", uint8(e))
}
