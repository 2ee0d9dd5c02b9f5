package bridge

// KeyEvent is one press or release of a physical deck key.
type KeyEvent struct {
	Index   int
	Pressed bool
}

type eventKind int

const (
	evKey eventKind = iota
	evWindowAdded
	evWindowRemoved
	evLog
	evStatus
)

// event is the tagged variant funneled into the coordinator's single
// mutator goroutine. Both event sources (deck keys, D-Bus callbacks)
// enqueue these and never touch shared state themselves.
type event struct {
	kind eventKind

	// evKey
	index   int
	pressed bool

	// evWindowAdded / evWindowRemoved
	id      string
	caption string
	class   string

	// evLog
	msg string

	// evStatus
	status chan StatusData
}

// StatusData is the answer to a status query, serialized as JSON over
// the Status D-Bus method.
type StatusData struct {
	DaemonRunning bool  `json:"daemon_running"`
	Windows       int   `json:"windows"`
	SlotsUsed     int   `json:"slots_used"`
	SlotsTotal    int   `json:"slots_total"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}
