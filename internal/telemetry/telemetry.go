package telemetry

import "time"

// Status is the user-facing run status of the streaming worker.
type Status string

const (
	StatusStandby       Status = "standby"
	StatusConnecting    Status = "connecting"
	StatusStreamingHW   Status = "streaming"
	StatusStreamingSim  Status = "simulating"
)

// StatusSample records one status transition.
type StatusSample struct {
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
}

// Reporter receives status transitions from the streaming worker.
type Reporter interface {
	ReportStatus(status Status, detail string)
}

// MultiReporter fans out status transitions to multiple destinations.
type MultiReporter []Reporter

func (m MultiReporter) ReportStatus(status Status, detail string) {
	for _, r := range m {
		if r != nil {
			r.ReportStatus(status, detail)
		}
	}
}

// SnapshotSource yields the latest generated buffer with its sequence
// number, or ok=false when nothing has been published yet.
type SnapshotSource func() (buf []complex64, seq uint64, ok bool)

// ParamSink accepts validated live parameter updates.
type ParamSink interface {
	SetFrequency(hz float64) error
	SetGain(db float64) error
	SetAmplitude(a float64) error
	SetWaveform(name string) error
}
