package core

// Status is the lifecycle state of a print document.
type Status string

const (
	StatusUploaded    Status = "uploaded"
	StatusDownloading Status = "downloading"
	StatusQueued      Status = "queued"
	StatusPrinting    Status = "printing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// transitions is the full forward-only graph. Retries re-enter queued from
// printing; completed and failed admit nothing.
var transitions = map[Status][]Status{
	StatusUploaded:    {StatusDownloading, StatusFailed},
	StatusDownloading: {StatusQueued, StatusFailed},
	StatusQueued:      {StatusPrinting, StatusFailed},
	StatusPrinting:    {StatusCompleted, StatusQueued, StatusFailed},
	StatusCompleted:   {},
	StatusFailed:      {},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether next is directly reachable from s.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}
