package index

// RunRecord summarizes one completed transfer run
type RunRecord struct {
	ID         string
	Command    string
	System     string
	RemoteRoot string
	LocalRoot  string
	Status     string
	Succeeded  int
	Skipped    int
	Failed     int
	Bytes      int64
	DurationMS int64
	StartedAt  int64
}

// RunItem is one file or directory processed during a run
type RunItem struct {
	RunID      string
	RemotePath string
	LocalPath  string
	Kind       string
	Outcome    string
	Bytes      int64
	ErrorCode  string
	Detail     string
}
