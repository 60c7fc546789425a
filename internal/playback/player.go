package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nowplaying/internal/spotify"
)

// Job periods, in scheduler ticks.
const (
	progressSyncTicks = 150
	playbackSyncTicks = 50
	devicePollTicks   = 100
	volumePollTicks   = 50

	defaultVolume = 50
)

// ErrSessionInvalid is returned by a Source whose session can no longer
// produce an access token.
var ErrSessionInvalid = fmt.Errorf("playback: session no longer valid: %w", spotify.ErrUnauthorized)

// Facade is the subset of the Web API a player drives.
type Facade interface {
	CurrentlyPlaying(ctx context.Context) (*spotify.PlaybackState, error)
	Devices(ctx context.Context) ([]spotify.Device, error)
	TransferPlayback(ctx context.Context, deviceID string) error
	StartResumePlayback(ctx context.Context, deviceID string, uris []string) error
	PausePlayback(ctx context.Context, deviceID string) error
	SetVolume(ctx context.Context, percent int, deviceID string) error
}

// Source yields a Facade bound to the session's current access token. It is
// called once per network job so refreshed tokens are picked up.
type Source func(ctx context.Context) (Facade, error)

// DeviceState is the device picker's view.
type DeviceState struct {
	Devices    []spotify.Device `json:"devices"`
	SelectedID string           `json:"selected_id"`
}

// VolumeState tracks the active device's volume control.
type VolumeState struct {
	Available      bool   `json:"available"`
	DeviceID       string `json:"device_id,omitempty"`
	DeviceName     string `json:"device_name,omitempty"`
	SupportsVolume bool   `json:"supports_volume"`
	Volume         int    `json:"volume"`
	PreviousVolume int    `json:"previous_volume"`
	Muted          bool   `json:"muted"`
}

// Player owns one session's store and the schedule that keeps it in sync.
type Player struct {
	store     *Store
	source    Source
	logger    *slog.Logger
	scheduler *Scheduler
	now       func() time.Time
	lastUsed  atomic.Int64
	halted    atomic.Bool

	// sourceMu serializes session lookups so a failed refresh is attempted
	// once, not once per concurrent job.
	sourceMu sync.Mutex

	mu      sync.Mutex
	devices DeviceState
	volume  VolumeState
	cancel  context.CancelFunc
	done    chan struct{}
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithPlayerClock overrides the player's time source.
func WithPlayerClock(now func() time.Time) PlayerOption {
	return func(p *Player) {
		p.now = now
	}
}

// WithInterval overrides the base tick.
func WithInterval(d time.Duration) PlayerOption {
	return func(p *Player) {
		p.scheduler.interval = d
	}
}

// NewPlayer creates an idle player. Start begins polling.
func NewPlayer(source Source, logger *slog.Logger, opts ...PlayerOption) *Player {
	p := &Player{
		store:     NewStore(),
		source:    source,
		logger:    logger,
		scheduler: NewScheduler(Tick, logger),
		now:       time.Now,
		volume:    VolumeState{Volume: defaultVolume, PreviousVolume: defaultVolume},
	}
	for _, opt := range opts {
		opt(p)
	}

	p.scheduler.Every("progress", 1, p.advance)
	p.scheduler.EveryAsync("progress_sync", progressSyncTicks, p.syncProgress)
	p.scheduler.EveryAsync("playback_sync", playbackSyncTicks, p.syncPlayback)
	p.scheduler.EveryAsync("device_poll", devicePollTicks, p.pollDevices)
	p.scheduler.EveryAsync("volume_poll", volumePollTicks, p.pollVolume)

	p.touch()
	return p
}

// Store exposes the player's store.
func (p *Player) Store() *Store {
	return p.store
}

// Seed installs an initial snapshot, typically from the page render.
func (p *Player) Seed(snapshot *spotify.PlaybackState) {
	p.store.SetCurrentTrack(snapshot)
}

// Start launches the scheduler under ctx. Calling Start on a running player
// is a no-op.
func (p *Player) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.store.setPolling(true)

	go func(done chan struct{}) {
		defer close(done)
		p.scheduler.Run(runCtx)
	}(p.done)
}

// Stop cancels the schedule and waits for in-flight jobs to return.
func (p *Player) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.store.setPolling(false)
}

// State returns the current playback state.
func (p *Player) State() State {
	p.touch()
	return p.store.State()
}

// LastUsed reports when a caller last interacted with the player.
func (p *Player) LastUsed() time.Time {
	return time.Unix(0, p.lastUsed.Load())
}

// Halted reports whether polling stopped because the session became invalid.
func (p *Player) Halted() bool {
	return p.halted.Load()
}

// facade resolves the session's client. Once the source reports the session
// invalid the schedule is cancelled and later calls fail without asking again.
func (p *Player) facade(ctx context.Context) (Facade, error) {
	p.sourceMu.Lock()
	defer p.sourceMu.Unlock()

	if p.halted.Load() {
		return nil, ErrSessionInvalid
	}
	facade, err := p.source(ctx)
	if errors.Is(err, ErrSessionInvalid) {
		p.halt()
	}
	return facade, err
}

// halt cancels the schedule without waiting; it runs inside a job.
func (p *Player) halt() {
	p.halted.Store(true)

	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.logger.Info("session no longer valid, polling stopped")
}

func (p *Player) touch() {
	p.lastUsed.Store(p.now().UnixNano())
}

// Play starts trackID, or resumes it when it is the tracked, paused item.
func (p *Player) Play(ctx context.Context, trackID string) error {
	p.touch()
	if trackID == "" {
		return errors.New("playback: track id is required")
	}

	facade, err := p.facade(ctx)
	if err != nil {
		return Classify(err)
	}
	deviceID, err := resolveDevice(ctx, facade)
	if err != nil {
		return Classify(err)
	}

	state := p.store.State()
	if state.ActiveTrackID == trackID && !state.IsPlaying {
		p.store.SetIsPlaying(true)
		err = facade.StartResumePlayback(ctx, deviceID, nil)
	} else {
		p.store.SetCurrentTrack(&spotify.PlaybackState{
			IsPlaying:  true,
			ProgressMs: 0,
			Item:       &spotify.Track{ID: trackID, DurationMs: 0},
		})
		err = facade.StartResumePlayback(ctx, deviceID, []string{"spotify:track:" + trackID})
	}
	if err != nil {
		return Classify(err)
	}

	p.reconcile(ctx, facade)
	return nil
}

// Pause optimistically marks the store paused and pauses the device.
func (p *Player) Pause(ctx context.Context) error {
	p.touch()

	facade, err := p.facade(ctx)
	if err != nil {
		return Classify(err)
	}
	deviceID, err := resolveDevice(ctx, facade)
	if err != nil {
		return Classify(err)
	}

	p.store.SetIsPlaying(false)
	if err := facade.PausePlayback(ctx, deviceID); err != nil {
		return Classify(err)
	}

	p.reconcile(ctx, facade)
	return nil
}

// Devices fetches the device list and updates the picker selection.
func (p *Player) Devices(ctx context.Context) (DeviceState, error) {
	p.touch()

	facade, err := p.facade(ctx)
	if err != nil {
		return DeviceState{}, Classify(err)
	}
	devices, err := facade.Devices(ctx)
	if err != nil {
		return DeviceState{}, Classify(err)
	}
	return p.applyDevices(devices), nil
}

// Transfer moves playback to deviceID and selects it.
func (p *Player) Transfer(ctx context.Context, deviceID string) error {
	p.touch()
	if deviceID == "" {
		return errors.New("playback: device id is required")
	}

	facade, err := p.facade(ctx)
	if err != nil {
		return Classify(err)
	}
	if err := facade.TransferPlayback(ctx, deviceID); err != nil {
		return Classify(err)
	}

	p.mu.Lock()
	p.devices.SelectedID = deviceID
	p.mu.Unlock()
	return nil
}

// Volume fetches the active device's volume.
func (p *Player) Volume(ctx context.Context) (VolumeState, error) {
	p.touch()

	facade, err := p.facade(ctx)
	if err != nil {
		return VolumeState{}, Classify(err)
	}
	devices, err := facade.Devices(ctx)
	if err != nil {
		return VolumeState{}, Classify(err)
	}
	return p.applyVolume(devices), nil
}

// SetVolume changes the active device's volume. It does nothing when the
// device has no volume control and reverts the local level on failure.
func (p *Player) SetVolume(ctx context.Context, level int) (VolumeState, error) {
	p.touch()
	level = max(0, min(level, 100))

	facade, err := p.facade(ctx)
	if err != nil {
		return VolumeState{}, Classify(err)
	}
	vol, err := p.volumeFor(ctx, facade)
	if err != nil {
		return VolumeState{}, Classify(err)
	}
	if !vol.Available || !vol.SupportsVolume {
		return vol, nil
	}

	p.mu.Lock()
	previous := p.volume.Volume
	p.volume.PreviousVolume = previous
	p.volume.Volume = level
	p.volume.Muted = level == 0
	p.mu.Unlock()

	if err := facade.SetVolume(ctx, level, vol.DeviceID); err != nil {
		p.mu.Lock()
		p.volume.Volume = previous
		p.volume.Muted = previous == 0
		vol = p.volume
		p.mu.Unlock()
		return vol, Classify(err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume, nil
}

// ToggleMute mutes by remembering the level and setting zero, and unmutes by
// restoring the remembered level.
func (p *Player) ToggleMute(ctx context.Context) (VolumeState, error) {
	p.touch()

	facade, err := p.facade(ctx)
	if err != nil {
		return VolumeState{}, Classify(err)
	}
	vol, err := p.volumeFor(ctx, facade)
	if err != nil {
		return VolumeState{}, Classify(err)
	}
	if !vol.Available || !vol.SupportsVolume {
		return vol, nil
	}

	target := 0
	if vol.Muted {
		target = vol.PreviousVolume
	}
	if err := facade.SetVolume(ctx, target, vol.DeviceID); err != nil {
		return vol, Classify(err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if vol.Muted {
		p.volume.Volume = vol.PreviousVolume
		p.volume.Muted = false
	} else {
		p.volume.PreviousVolume = vol.Volume
		p.volume.Volume = 0
		p.volume.Muted = true
	}
	return p.volume, nil
}

// volumeFor returns the cached volume state, fetching it first if no poll
// has completed yet.
func (p *Player) volumeFor(ctx context.Context, facade Facade) (VolumeState, error) {
	p.mu.Lock()
	vol := p.volume
	p.mu.Unlock()
	if vol.Available {
		return vol, nil
	}

	devices, err := facade.Devices(ctx)
	if err != nil {
		return VolumeState{}, err
	}
	return p.applyVolume(devices), nil
}

// reconcile replaces the store with an authoritative read after a command.
func (p *Player) reconcile(ctx context.Context, facade Facade) {
	current, err := facade.CurrentlyPlaying(ctx)
	if err != nil {
		p.logger.Debug("reconcile playback state", "error", err)
		return
	}
	p.store.SetCurrentTrack(current)
}

func (p *Player) advance(context.Context) {
	p.store.UpdateProgress(p.scheduler.interval)
}

// syncProgress corrects local extrapolation while playing. A fetched item
// matching the tracked id overwrites progress; a different item replaces the
// snapshot. Failures and empty results keep the last snapshot.
func (p *Player) syncProgress(ctx context.Context) {
	if !p.store.State().IsPlaying {
		return
	}
	current, err := p.fetchCurrent(ctx)
	if err != nil {
		p.logger.Warn("progress sync skipped", "error", err)
		return
	}
	if current == nil || ctx.Err() != nil {
		return
	}
	p.store.SetCurrentTrack(current)
}

func (p *Player) syncPlayback(ctx context.Context) {
	current, err := p.fetchCurrent(ctx)
	if err != nil {
		p.logger.Debug("playback sync failed", "error", err)
		return
	}
	if ctx.Err() != nil {
		return
	}
	p.store.SetCurrentTrack(current)
}

func (p *Player) pollDevices(ctx context.Context) {
	devices, err := p.fetchDevices(ctx)
	if err != nil {
		p.logger.Debug("device poll failed", "error", err)
		return
	}
	if ctx.Err() != nil {
		return
	}
	p.applyDevices(devices)
}

func (p *Player) pollVolume(ctx context.Context) {
	devices, err := p.fetchDevices(ctx)
	if err != nil {
		p.logger.Debug("volume poll failed", "error", err)
		return
	}
	if ctx.Err() != nil {
		return
	}
	p.applyVolume(devices)
}

func (p *Player) fetchCurrent(ctx context.Context) (*spotify.PlaybackState, error) {
	facade, err := p.facade(ctx)
	if err != nil {
		return nil, err
	}
	return facade.CurrentlyPlaying(ctx)
}

func (p *Player) fetchDevices(ctx context.Context) ([]spotify.Device, error) {
	facade, err := p.facade(ctx)
	if err != nil {
		return nil, err
	}
	return facade.Devices(ctx)
}

func (p *Player) applyDevices(devices []spotify.Device) DeviceState {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.devices.Devices = devices
	if selected := PickDevice(devices); selected != "" {
		p.devices.SelectedID = selected
	}
	return p.devices
}

func (p *Player) applyVolume(devices []spotify.Device) VolumeState {
	p.mu.Lock()
	defer p.mu.Unlock()

	active, ok := activeDevice(devices)
	if !ok {
		p.volume.Available = false
		p.volume.DeviceID = ""
		p.volume.DeviceName = ""
		p.volume.SupportsVolume = false
		return p.volume
	}

	p.volume.Available = true
	p.volume.DeviceID = active.ID
	p.volume.DeviceName = active.Name
	p.volume.SupportsVolume = active.SupportsVolume
	if active.SupportsVolume {
		p.volume.Volume = active.Volume()
		p.volume.Muted = active.Volume() == 0
	}
	return p.volume
}

// PickDevice selects the active device, else the first listed one.
func PickDevice(devices []spotify.Device) string {
	if active, ok := activeDevice(devices); ok {
		return active.ID
	}
	for _, d := range devices {
		if d.ID != "" {
			return d.ID
		}
	}
	return ""
}

func activeDevice(devices []spotify.Device) (spotify.Device, bool) {
	for _, d := range devices {
		if d.IsActive && d.ID != "" {
			return d, true
		}
	}
	return spotify.Device{}, false
}

func resolveDevice(ctx context.Context, facade Facade) (string, error) {
	devices, err := facade.Devices(ctx)
	if err != nil {
		return "", err
	}
	if id := PickDevice(devices); id != "" {
		return id, nil
	}
	return "", ErrNoActiveDevice
}
