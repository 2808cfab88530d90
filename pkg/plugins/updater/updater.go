// Package updater checks GitHub releases for a newer build of the host
// application and, on request, downloads, verifies, and installs it.
// Checks run on demand, on a fixed interval, or on a cron schedule.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/robfig/cron/v3"

	"teaplug/pkg/plug"
)

// Handle is the typed capability hosts hold after registering the
// updater.
type Handle = plug.Handle[State, Msg, Output]

var _ plug.Plugin[State, Msg, Output] = (*Plugin)(nil)

// Config controls where releases come from and when checks run.
type Config struct {
	// Owner and Repo locate the GitHub repository releases are read
	// from.
	Owner string
	Repo  string

	// CurrentVersion is the running build's version, with or without a
	// leading "v".
	CurrentVersion string

	// CheckOnStart schedules a check as soon as the plugin initializes.
	CheckOnStart bool

	// CheckEvery runs a check on a fixed interval when positive.
	CheckEvery time.Duration

	// CheckSchedule runs checks on a standard five-field cron schedule
	// when non-empty, e.g. "0 9 * * *" for daily at nine.
	CheckSchedule string

	// DownloadDir overrides where artifacts land; empty means the user
	// cache directory.
	DownloadDir string

	// APIBaseURL overrides the GitHub API endpoint, for enterprise
	// installs and tests.
	APIBaseURL string
}

// Validate reports configuration the updater cannot run with.
func (c Config) Validate() error {
	if c.Owner == "" || c.Repo == "" {
		return fmt.Errorf("updater: owner and repo are required")
	}
	if c.CurrentVersion == "" {
		return fmt.Errorf("updater: current version is required")
	}
	if c.CheckSchedule != "" {
		if _, err := cron.ParseStandard(c.CheckSchedule); err != nil {
			return fmt.Errorf("updater: bad check schedule %q: %w", c.CheckSchedule, err)
		}
	}
	return nil
}

// State is the updater's phase plus what the last check found.
type State struct {
	Phase     Phase
	Available *Release
	LastCheck time.Time
}

// Plugin drives the check/download/install cycle.
type Plugin struct {
	cfg    Config
	client *releaseClient
	logger *slog.Logger
}

// New creates an updater from cfg. Call cfg.Validate first; New does
// not.
func New(cfg Config, logger *slog.Logger) *Plugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Plugin{
		cfg:    cfg,
		client: newReleaseClient(cfg.Owner, cfg.Repo, cfg.APIBaseURL),
		logger: logger,
	}
}

// Register adds the updater to a builder.
func Register(b *plug.Builder, cfg Config, logger *slog.Logger) Handle {
	return plug.Add[State, Msg, Output](b, New(cfg, logger))
}

func (*Plugin) Name() string { return "updater" }

func (p *Plugin) Init() (State, plug.Cmd[Msg]) {
	s := State{Phase: PhaseIdle}
	if !p.cfg.CheckOnStart {
		return s, nil
	}
	s.Phase = PhaseChecking
	return s, p.checkCmd()
}

func (p *Plugin) Update(s *State, msg Msg) (plug.Cmd[Msg], *Output) {
	switch m := msg.(type) {
	case tickMsg:
		if s.Phase != PhaseIdle {
			return nil, nil
		}
		s.Phase = PhaseChecking
		return p.checkCmd(), nil

	case CheckRequested:
		if s.Phase != PhaseIdle {
			return nil, out(Busy{Phase: s.Phase})
		}
		s.Phase = PhaseChecking
		return p.checkCmd(), nil

	case checkDone:
		s.Phase = PhaseIdle
		s.LastCheck = time.Now()
		if m.err != nil {
			p.logger.Warn("release check failed", "error", m.err)
			return nil, out(CheckFailed{Err: m.err})
		}
		if m.release == nil || m.release.Prerelease || !isNewer(p.cfg.CurrentVersion, m.release.TagName) {
			return nil, out(UpToDate{Version: p.cfg.CurrentVersion})
		}
		s.Available = m.release
		p.logger.Info("update available", "version", m.release.Version())
		return nil, out(UpdateAvailable{Version: m.release.Version(), Notes: m.release.Body})

	case InstallRequested:
		if s.Phase != PhaseIdle {
			return nil, out(Busy{Phase: s.Phase})
		}
		if s.Available == nil {
			return nil, out(InstallFailed{Err: fmt.Errorf("no update available to install")})
		}
		s.Phase = PhaseDownloading
		return p.downloadCmd(s.Available), out(DownloadStarted{Version: s.Available.Version()})

	case downloadProgress:
		return nil, out(Progress{Received: m.received, Total: m.total})

	case downloadDone:
		if m.err != nil {
			s.Phase = PhaseIdle
			p.logger.Error("download failed", "error", m.err)
			return nil, out(DownloadFailed{Err: m.err})
		}
		s.Phase = PhaseInstalling
		return plug.Emit(Msg(installNow{})), out(Downloaded{Path: m.path})

	case installNow:
		if s.Phase != PhaseInstalling || s.Available == nil {
			return nil, nil
		}
		return p.installCmd(s.Available), out(Installing{})

	case installDone:
		s.Phase = PhaseIdle
		if m.err != nil {
			p.logger.Error("install failed", "error", m.err)
			return nil, out(InstallFailed{Err: m.err})
		}
		version := ""
		if s.Available != nil {
			version = s.Available.Version()
		}
		s.Available = nil
		return nil, out(Installed{Version: version})
	}
	return nil, nil
}

// Subscriptions exposes the configured check cadence. Interval and cron
// schedules can coexist; ticks arriving mid-cycle are ignored by Update.
func (p *Plugin) Subscriptions(State) []plug.Sub[Msg] {
	var subs []plug.Sub[Msg]
	if p.cfg.CheckEvery > 0 {
		subs = append(subs, plug.Every(p.cfg.CheckEvery, func(time.Time) Msg { return tickMsg{} }))
	}
	if p.cfg.CheckSchedule != "" {
		subs = append(subs, cronSub(p.cfg.CheckSchedule))
	}
	return subs
}

// cronSub emits a tick at every firing of a standard cron schedule. An
// unparseable schedule produces a source that exits immediately;
// Config.Validate catches that case up front.
func cronSub(schedule string) plug.Sub[Msg] {
	return plug.Sub[Msg]{
		ID: "cron/" + schedule,
		Run: func(ctx context.Context, emit func(Msg)) {
			spec, err := cron.ParseStandard(schedule)
			if err != nil {
				return
			}
			for {
				next := spec.Next(time.Now())
				timer := time.NewTimer(time.Until(next))
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
					emit(tickMsg{})
				}
			}
		},
	}
}

func (p *Plugin) checkCmd() plug.Cmd[Msg] {
	client := p.client
	return plug.Perform(func(ctx context.Context) Msg {
		release, err := client.latest(ctx)
		return checkDone{release: release, err: err}
	})
}

// downloadCmd streams the platform artifact, verifies it against the
// release's published checksum, and reports progress along the way.
func (p *Plugin) downloadCmd(release *Release) plug.Cmd[Msg] {
	client := p.client
	destDir := p.downloadDir()
	return func(ctx context.Context, emit func(Msg)) {
		asset, ok := platformAsset(release)
		if !ok {
			emit(downloadDone{err: fmt.Errorf("release %s has no asset for %s/%s",
				release.TagName, runtime.GOOS, runtime.GOARCH)})
			return
		}

		path, sum, err := client.download(ctx, asset, destDir, func(received, total int64) {
			emit(downloadProgress{received: received, total: total})
		})
		if err != nil {
			emit(downloadDone{err: err})
			return
		}

		want, err := client.fetchChecksum(ctx, release, asset.Name)
		if err != nil {
			os.Remove(path)
			emit(downloadDone{err: err})
			return
		}
		if sum != want {
			os.Remove(path)
			emit(downloadDone{err: fmt.Errorf("checksum mismatch for %s: got %s, want %s", asset.Name, sum, want)})
			return
		}
		emit(downloadDone{path: path})
	}
}

// installCmd hands the verified artifact to the platform installer.
func (p *Plugin) installCmd(release *Release) plug.Cmd[Msg] {
	destDir := p.downloadDir()
	return plug.Perform(func(ctx context.Context) Msg {
		asset, ok := platformAsset(release)
		if !ok {
			return installDone{err: fmt.Errorf("no platform asset")}
		}
		path := filepath.Join(destDir, asset.Name)

		var cmd *exec.Cmd
		switch {
		case runtime.GOOS == "linux" && filepath.Ext(path) == ".deb":
			cmd = exec.CommandContext(ctx, "pkexec", "dpkg", "-i", path)
		case runtime.GOOS == "darwin":
			cmd = exec.CommandContext(ctx, "open", path)
		default:
			return installDone{err: fmt.Errorf("no installer for %s artifact %s", runtime.GOOS, asset.Name)}
		}
		if output, err := cmd.CombinedOutput(); err != nil {
			return installDone{err: fmt.Errorf("installer: %w: %s", err, output)}
		}
		return installDone{}
	})
}

func (p *Plugin) downloadDir() string {
	if p.cfg.DownloadDir != "" {
		return p.cfg.DownloadDir
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return os.TempDir()
	}
	return filepath.Join(cache, p.cfg.Repo, "updates")
}

func out(o Output) *Output { return &o }
