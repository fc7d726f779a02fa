package types

import "time"

// VersionResponse is returned by GET /version.
type VersionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
}

// ScheduleResponse is returned by GET /schedule.
type ScheduleResponse struct {
	Plan     string `json:"plan"`
	Schedule string `json:"schedule"`
	// NextRun is zero when nothing is scheduled.
	NextRun time.Time `json:"nextRun"`
	Busy    bool      `json:"busy"`
}
