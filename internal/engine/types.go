package engine

// Job describes one transfer to submit.
type Job struct {
	URL      string
	Dir      string
	FileName string
	Referer  string
	// Proxy is the proxy URL for this transfer; empty means direct.
	Proxy string
}

// JobStatus is the engine's view of one transfer.
type JobStatus struct {
	GID             string `json:"gid"`
	Status          string `json:"status"`
	TotalLength     int64  `json:"totalLength,string"`
	CompletedLength int64  `json:"completedLength,string"`
	DownloadSpeed   int64  `json:"downloadSpeed,string"`
	Connections     int    `json:"connections,string"`
	ErrorCode       string `json:"errorCode,omitempty"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
	Files           []struct {
		Path string `json:"path"`
	} `json:"files,omitempty"`
}

// Job states reported by the engine.
const (
	StatusActive   = "active"
	StatusWaiting  = "waiting"
	StatusPaused   = "paused"
	StatusError    = "error"
	StatusComplete = "complete"
	StatusRemoved  = "removed"
)

// GlobalStat aggregates counters across all jobs.
type GlobalStat struct {
	DownloadSpeed int64 `json:"downloadSpeed,string"`
	NumActive     int   `json:"numActive,string"`
	NumWaiting    int   `json:"numWaiting,string"`
	NumStopped    int   `json:"numStopped,string"`
}

// Pending is the number of jobs still to finish.
func (g GlobalStat) Pending() int {
	return g.NumActive + g.NumWaiting
}

var statusKeys = []string{
	"gid", "status", "totalLength", "completedLength", "downloadSpeed",
	"connections", "errorCode", "errorMessage", "files",
}
