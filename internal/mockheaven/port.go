// Package mockheaven is a stand-in heaven web server for local development
// and integration tests. It serves the same pages, fragments, abort and
// serial endpoints as the real server, backed by generated port activity.
package mockheaven

import "time"

// Status is a port's job status.
type Status int

const (
	Idle Status = iota
	Busy
	RunningLong
	FinishSuccess
	FinishWarning
	FinishError
	Fatal
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Busy:
		return "Busy"
	case RunningLong:
		return "RunningLong"
	case FinishSuccess:
		return "FinishSuccess"
	case FinishWarning:
		return "FinishWarning"
	case FinishError:
		return "FinishError"
	case Fatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Glyph is the short status marker shown in the dashboard grid.
func (s Status) Glyph() string {
	switch s {
	case Idle:
		return "😴"
	case Busy:
		return "⏳"
	case RunningLong:
		return "⏰"
	case FinishSuccess:
		return "✅"
	case FinishWarning:
		return "⚠️"
	case FinishError:
		return "❗"
	case Fatal:
		return "😵"
	default:
		return "?"
	}
}

// Color is the CSS background colour of the status.
func (s Status) Color() string {
	switch s {
	case FinishSuccess:
		return "#00ff00"
	case FinishWarning:
		return "#ff9933"
	case FinishError:
		return "#ff0000"
	case Busy:
		return "#33bbff"
	case RunningLong:
		return "#bb33ff"
	case Fatal:
		return "#ff33dd"
	default:
		return "#ffffff"
	}
}

// IsFinished reports whether the job has ended.
func (s Status) IsFinished() bool {
	return s == FinishSuccess || s == FinishWarning || s == FinishError
}

// StageEntry records when a port entered a stage.
type StageEntry struct {
	At    time.Time
	Stage string
}

// Port is a snapshot of one switch port and its job.
type Port struct {
	Label       string
	JobID       string
	Status      Status
	Stage       string
	JobStarted  time.Time
	LastUpdated time.Time
	History     []StageEntry
	Info        []string
	Log         []byte
}
