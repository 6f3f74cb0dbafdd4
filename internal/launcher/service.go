// Package launcher exposes the transport-agnostic command surface (spec.md
// §6): login, login_abort, get_logged, get_logging, get_active, set_active,
// delete_account, download_json. Grounded on the teacher's
// internal/app/bridge_*.go domain-split pattern (one thin method per
// command, logging the call and delegating into the lower-level packages)
// reproduced here without any GUI binding — this is the service a future
// GUI bridge, or the internal/api HTTP layer, sits on top of.
//
// download_json's effect in spec.md §6 is "resolves manifests for that
// version"; per spec.md §2's control flow ("ManifestResolver emits tasks
// into Queue. Queue owns the worker pool"), resolving a version also drives
// those tasks through a Queue in the background, with the host observing
// progress via Progress/QueueStats and steering it via Control.
package launcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mc-launcher-engine/internal/analytics"
	"mc-launcher-engine/internal/apperr"
	"mc-launcher-engine/internal/auth"
	"mc-launcher-engine/internal/filesystem"
	"mc-launcher-engine/internal/integrity"
	"mc-launcher-engine/internal/manifest"
	"mc-launcher-engine/internal/network"
	"mc-launcher-engine/internal/queue"
	"mc-launcher-engine/internal/security"
	"mc-launcher-engine/internal/task"
)

// LoggedAccount is the {name, uuid} shape the command surface returns for
// successful logins and store snapshots.
type LoggedAccount struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
}

// LoginProgress is one entry of get_logging()'s map: the in-flight login
// attempt for a slot. The entry is removed when that attempt returns.
type LoginProgress struct {
	Index      int    `json:"index"`
	ErrMessage string `json:"err_message"`
}

type pendingLogin struct {
	cancel context.CancelFunc
	err    string
}

// loginRunner is the subset of *auth.AuthFlow the service depends on,
// narrowed so tests can substitute a fake without driving a real OAuth
// round trip.
type loginRunner interface {
	Login(ctx context.Context) (auth.AccountInfo, error)
}

// DownloadSettings configures the Queue a resolved instance is run through.
// Callers (main.go) populate this from *config.ConfigManager.
type DownloadSettings struct {
	ChunkSize       int64
	Parallelism     int
	PollInterval    time.Duration
	BandwidthBps    int
	VerifyIntegrity bool
	UserAgent       string
}

// Service wires AuthFlow, AccountStore, ManifestResolver and the Queue
// behind the command surface. One Service exists per running engine.
type Service struct {
	logger   *slog.Logger
	accounts *auth.AccountStore
	resolver *manifest.ManifestResolver
	newFlow  func() loginRunner

	client     task.Client
	bandwidth  *network.BandwidthManager
	congestion *network.CongestionController
	allocator  *filesystem.Allocator
	verifier   *integrity.FileVerifier
	stats      *analytics.StatsManager
	scanner    security.Scanner
	settings   DownloadSettings

	mu      sync.Mutex
	pending map[int]*pendingLogin

	dlMu        sync.Mutex
	activeQueue *queue.Queue
	progress    chan queue.ProgressMessage
	control     chan queue.ControlSignal
}

// Deps bundles the Queue-side collaborators a Service needs to actually run
// downloads, as opposed to merely resolving manifests. Kept as a struct
// (rather than a long NewService parameter list) because main.go's wiring
// already constructs every one of these for other purposes.
type Deps struct {
	Client     task.Client
	Bandwidth  *network.BandwidthManager
	Congestion *network.CongestionController
	Allocator  *filesystem.Allocator
	Verifier   *integrity.FileVerifier
	Stats      *analytics.StatsManager
	Scanner    security.Scanner
	Settings   DownloadSettings
}

// NewService wires a Service backed by real AuthFlow instances.
func NewService(logger *slog.Logger, accounts *auth.AccountStore, resolver *manifest.ManifestResolver, client auth.HTTPClient, clientID string, deps Deps) *Service {
	return newServiceWithRunner(logger, accounts, resolver, func() loginRunner {
		return auth.NewAuthFlow(client, clientID)
	}, deps)
}

func newServiceWithRunner(logger *slog.Logger, accounts *auth.AccountStore, resolver *manifest.ManifestResolver, newFlow func() loginRunner, deps Deps) *Service {
	return &Service{
		logger:     logger,
		accounts:   accounts,
		resolver:   resolver,
		newFlow:    newFlow,
		pending:    make(map[int]*pendingLogin),
		client:     deps.Client,
		bandwidth:  deps.Bandwidth,
		congestion: deps.Congestion,
		allocator:  deps.Allocator,
		verifier:   deps.Verifier,
		stats:      deps.Stats,
		scanner:    deps.Scanner,
		settings:   deps.Settings,
	}
}

// Login runs AuthFlow for slot index and upserts the resulting AccountInfo
// on success (spec.md §6 login(index)). It blocks until the flow finishes,
// fails, or login_abort(index) cancels it.
func (s *Service) Login(ctx context.Context, index int) (LoggedAccount, error) {
	s.logger.Info("command", "op", "login", "index", index)

	loginCtx, cancel := context.WithCancel(ctx)
	entry := &pendingLogin{cancel: cancel}

	s.mu.Lock()
	s.pending[index] = entry
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, index)
		s.mu.Unlock()
		cancel()
	}()

	flow := s.newFlow()
	info, err := flow.Login(loginCtx)
	if err != nil {
		s.logger.Error("login failed", "index", index, "error", err)
		s.mu.Lock()
		entry.err = err.Error()
		s.mu.Unlock()
		return LoggedAccount{}, err
	}

	s.accounts.Insert(info)
	return LoggedAccount{Name: info.Name, UUID: info.UUID}, nil
}

// LoginAbort cancels the pending login for slot index, per spec.md §6
// login_abort(index). Returns the slot index unconditionally, matching the
// command surface's declared response shape; aborting an unknown or
// already-finished slot is a no-op.
func (s *Service) LoginAbort(index int) int {
	s.logger.Info("command", "op", "login_abort", "index", index)

	s.mu.Lock()
	entry, ok := s.pending[index]
	s.mu.Unlock()

	if ok {
		entry.cancel()
	}
	return index
}

// GetLogged returns a snapshot of the account store keyed by uuid, per
// spec.md §6 get_logged().
func (s *Service) GetLogged() map[string]LoggedAccount {
	out := make(map[string]LoggedAccount)
	for _, info := range s.accounts.List() {
		out[info.UUID] = LoggedAccount{Name: info.Name, UUID: info.UUID}
	}
	return out
}

// GetLogging returns the in-progress logins keyed by slot, per spec.md §6
// get_logging(). A slot drops out as soon as its Login call returns, whether
// it succeeded or failed.
func (s *Service) GetLogging() map[int]LoginProgress {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int]LoginProgress, len(s.pending))
	for index, entry := range s.pending {
		out[index] = LoginProgress{Index: index, ErrMessage: entry.err}
	}
	return out
}

// GetActive returns the active account's uuid, per spec.md §6 get_active().
func (s *Service) GetActive() string {
	return s.accounts.GetActive()
}

// SetActive marks uuid active if present, per spec.md §6 set_active(uuid).
func (s *Service) SetActive(uuid string) error {
	s.logger.Info("command", "op", "set_active", "uuid", uuid)
	if !s.accounts.SetActive(uuid) {
		return apperr.New(apperr.NotLoggedIn, "launcher.SetActive", "unknown account uuid")
	}
	return nil
}

// DeleteAccount removes uuid, per spec.md §6 delete_account(uuid). Removing
// the active account moves active to one of the remaining accounts, or
// clears it when none remain; the caller may then call SetActive.
func (s *Service) DeleteAccount(uuid string) {
	s.logger.Info("command", "op", "delete_account", "uuid", uuid)
	s.accounts.Remove(uuid)
}

// DownloadJSON resolves the manifest chain for versionID, per spec.md §6
// download_json(version_id), then hands the resulting Task list to a fresh
// Queue run in the background. The caller observes the run via Progress /
// QueueStats and steers it via Control; DownloadJSON itself returns as soon
// as resolution (not the download) completes, matching the command table's
// declared "—" response shape beyond the resolved instance.
func (s *Service) DownloadJSON(ctx context.Context, versionID string) (*manifest.ResolvedInstance, error) {
	s.logger.Info("command", "op", "download_json", "version_id", versionID)

	resolved, err := s.resolver.Resolve(ctx, versionID)
	if err != nil {
		return nil, err
	}

	if s.client != nil && len(resolved.Tasks) > 0 {
		s.startQueue(ctx, resolved)
	}
	return resolved, nil
}

// startQueue allocates destination files, builds a Queue from the service's
// DownloadSettings, and runs it on a background goroutine, draining
// completed chunks into stats/integrity/congestion bookkeeping.
func (s *Service) startQueue(ctx context.Context, resolved *manifest.ResolvedInstance) {
	for _, t := range resolved.Tasks {
		if t.Size <= 0 || s.allocator == nil {
			continue
		}
		if err := s.allocator.AllocateFile(t.Path, t.Size); err != nil {
			s.logger.Warn("pre-allocation failed, proceeding without it", "path", t.Path, "error", err)
		}
	}

	// A chunked Task reports one ProgressMessage per chunk on the same
	// Path; remaining tracks how many are still outstanding so
	// verify/scan/TrackFileCompleted fire exactly once, on the last chunk.
	remaining := make(map[string]int, len(resolved.Tasks))
	for _, t := range resolved.Tasks {
		n := 1
		if t.Size > s.settings.ChunkSize && s.settings.ChunkSize > 0 {
			n = len(task.ExpandChunks(t.Size, s.settings.ChunkSize))
		}
		remaining[t.Path] += n
	}

	q := queue.New(s.client, s.settings.ChunkSize, s.settings.Parallelism, s.settings.PollInterval)
	q.UserAgent = s.settings.UserAgent
	progress := make(chan queue.ProgressMessage, 256)
	q.Progress = progress
	control := make(chan queue.ControlSignal, 4)

	s.dlMu.Lock()
	s.activeQueue = q
	s.progress = progress
	s.control = control
	s.dlMu.Unlock()

	go s.drainProgress(ctx, progress, remaining, resolved.Checksums)
	go func() {
		q.Run(ctx, resolved.Tasks, control)
		// Run's coordinator is the only sender on progress (workers report
		// to it over an internal channel), so once Run returns nothing else
		// sends here, and closing lets drainProgress exit instead of leaking.
		close(progress)
	}()
}

// drainProgress consumes ProgressMessages until the channel closes (the
// startQueue goroutine closes it once Run returns), feeding each completed
// chunk into StatsManager and CongestionController, and running
// VerifyAndScan once a Task's last chunk lands.
func (s *Service) drainProgress(ctx context.Context, progress <-chan queue.ProgressMessage, remaining map[string]int, checksums map[string]string) {
	for msg := range progress {
		if s.congestion != nil {
			var err error
			if !msg.Success {
				err = apperr.New(apperr.Transport, "launcher.drainProgress", msg.FailReason)
			}
			s.congestion.RecordOutcome(msg.Host, 0, err)
			s.applyCongestionPriority(msg.Host)
		}
		if !msg.Success {
			s.logger.Warn("chunk failed", "path", msg.Path, "reason", msg.FailReason)
			continue
		}

		if s.stats != nil {
			s.stats.TrackDownloadBytes(msg.BytesWritten)
			s.stats.TrackCategoryBytes(analytics.CategoryForPath(msg.Path), msg.BytesWritten)
		}

		remaining[msg.Path]--
		if remaining[msg.Path] > 0 {
			continue
		}
		if s.stats != nil {
			s.stats.TrackFileCompleted()
		}
		if err := s.VerifyAndScan(ctx, msg.Path, checksums[msg.Path]); err != nil {
			s.logger.Warn("post-download verification failed", "path", msg.Path, "error", err)
		}
	}
}

// applyCongestionPriority downgrades a host's BandwidthManager priority
// once CongestionController's AIMD logic has backed its concurrency down to
// the floor, so ThrottledTransport yields more bandwidth to healthier hosts.
func (s *Service) applyCongestionPriority(host string) {
	if host == "" || s.bandwidth == nil || s.congestion == nil {
		return
	}
	stats := s.congestion.GetHostStats(host)
	if stats == nil {
		return
	}
	priority := 2
	if stats.Concurrency <= 1 {
		priority = 1
	}
	s.bandwidth.SetTaskPriority(host, priority)
}

// VerifyAndScan runs FileVerifier against expectedSHA1 (when
// VerifyIntegrity is enabled) and then the configured AV Scanner over path,
// logging rather than failing on a scan hit — spec.md §8 does not list AV
// scanning as a testable property, so it is a best-effort post-pass.
func (s *Service) VerifyAndScan(ctx context.Context, path, expectedSHA1 string) error {
	if s.settings.VerifyIntegrity && s.verifier != nil && expectedSHA1 != "" {
		if err := s.verifier.Verify(path, "sha1", expectedSHA1); err != nil {
			return apperr.Wrap(apperr.FilesystemIO, "launcher.VerifyAndScan", err)
		}
	}
	if s.scanner != nil && security.ShouldScan(path) {
		if err := s.scanner.ScanFile(ctx, path); err != nil {
			s.logger.Warn("post-download scan flagged file", "path", path, "error", err)
		}
	}
	return nil
}

// Progress returns the channel the currently running Queue reports
// completed chunks on, or nil if no download is in flight.
func (s *Service) Progress() <-chan queue.ProgressMessage {
	s.dlMu.Lock()
	defer s.dlMu.Unlock()
	return s.progress
}

// Control returns the channel that steers the currently running Queue
// (spec.md §4.2 ControlSignal), or nil if no download is in flight.
func (s *Service) Control() chan<- queue.ControlSignal {
	s.dlMu.Lock()
	defer s.dlMu.Unlock()
	return s.control
}

// QueueStats returns the currently running Queue's stats snapshot, or the
// zero value if no download is in flight.
func (s *Service) QueueStats() queue.QueueStats {
	s.dlMu.Lock()
	q := s.activeQueue
	s.dlMu.Unlock()
	if q == nil {
		return queue.QueueStats{}
	}
	return q.Stats()
}
