package updater

// Msg is the updater's inbound message set. CheckRequested and
// InstallRequested are the public requests; the unexported variants are
// timer ticks and I/O completions.
type Msg interface{ isMsg() }

// CheckRequested asks for an immediate release check.
type CheckRequested struct{}

// InstallRequested asks to download, verify, and install the release
// found by the last successful check.
type InstallRequested struct{}

type tickMsg struct{}

type checkDone struct {
	release *Release
	err     error
}

type downloadProgress struct {
	received int64
	total    int64
}

type downloadDone struct {
	path string
	err  error
}

type installNow struct{}

type installDone struct{ err error }

func (CheckRequested) isMsg()   {}
func (InstallRequested) isMsg() {}
func (tickMsg) isMsg()          {}
func (checkDone) isMsg()        {}
func (downloadProgress) isMsg() {}
func (downloadDone) isMsg()     {}
func (installNow) isMsg()       {}
func (installDone) isMsg()      {}

// Output is what the updater reports to its listeners.
type Output interface{ isOutput() }

// UpdateAvailable reports that a newer release exists.
type UpdateAvailable struct {
	Version string
	Notes   string
}

// UpToDate reports that the running version is current.
type UpToDate struct{ Version string }

// CheckFailed reports a failed release check.
type CheckFailed struct{ Err error }

// DownloadStarted reports that an install began downloading.
type DownloadStarted struct{ Version string }

// Progress reports download progress. Total is zero when the server did
// not announce a length.
type Progress struct {
	Received int64
	Total    int64
}

// Downloaded reports a verified artifact on disk.
type Downloaded struct{ Path string }

// DownloadFailed reports a failed or corrupt download.
type DownloadFailed struct{ Err error }

// Installing reports that the platform installer is running.
type Installing struct{}

// Installed reports a completed install; the new version runs after
// restart.
type Installed struct{ Version string }

// InstallFailed reports a failed install.
type InstallFailed struct{ Err error }

// Busy rejects a request that arrived while another phase was running.
type Busy struct{ Phase Phase }

func (UpdateAvailable) isOutput() {}
func (UpToDate) isOutput()        {}
func (CheckFailed) isOutput()     {}
func (DownloadStarted) isOutput() {}
func (Progress) isOutput()        {}
func (Downloaded) isOutput()      {}
func (DownloadFailed) isOutput()  {}
func (Installing) isOutput()      {}
func (Installed) isOutput()       {}
func (InstallFailed) isOutput()   {}
func (Busy) isOutput()            {}

// Phase is where the updater currently is in its check/install cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseChecking
	PhaseDownloading
	PhaseInstalling
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseChecking:
		return "checking"
	case PhaseDownloading:
		return "downloading"
	case PhaseInstalling:
		return "installing"
	}
	return "unknown"
}
