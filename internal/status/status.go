package status

// Level is the workload status level reported to the operator.
type Level string

const (
	LevelActive      Level = "active"
	LevelMaintenance Level = "maintenance"
	LevelWaiting     Level = "waiting"
	LevelBlocked     Level = "blocked"
)

// ReadyMessage is reported when nothing is unresolved.
const ReadyMessage = "Unit is ready"

// Condition is one unresolved problem raised by a reconciliation stage.
type Condition struct {
	Stage   string `json:"stage"`
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// WorkloadStatus is the aggregated outcome of a reconciliation pass.
type WorkloadStatus struct {
	Level      Level       `json:"level"`
	Message    string      `json:"message"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// IsZero reports whether no status has been recorded yet.
func (s WorkloadStatus) IsZero() bool {
	return s.Level == "" && s.Message == ""
}

func (s WorkloadStatus) String() string {
	if s.Message == "" {
		return string(s.Level)
	}
	return string(s.Level) + ": " + s.Message
}
