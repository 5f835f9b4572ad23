// Package recording implements the per-call bridge recording
// lifecycle (§4.4): starting at most one recording per call, stopping
// it on cleanup, verifying the resulting file actually landed on
// disk, and moving it into the canonical recordings directory with a
// bounded retry schedule when it hasn't.
package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/asterisk-tools/outbound-dialer/internal/ari"
)

// searchDirs returns the directories checked for a recording file,
// in priority order, per §4.4.
func searchDirs(recordingsDir string) []string {
	return []string{
		recordingsDir,
		"/var/spool/asterisk/recording",
		"/var/spool/asterisk/monitor",
	}
}

// ownership is the bookkeeping kept per started recording, mirroring
// recordingOwnership[recordingId] in the design.
type ownership struct {
	callID       string
	recordingName string
	retryTimer   *time.Timer
	retryCount   int
}

// Manager tracks started recordings and drives their stop/verify/move
// lifecycle. It is only ever touched from the correlator's single
// event-processing goroutine; retry timers reschedule their own work
// by posting back onto that goroutine via post, so Manager itself
// needs no internal locking.
type Manager struct {
	adapter         ari.Adapter
	recordingsDir   string
	format          string
	logger          *slog.Logger
	post            func(func())
	now             func() time.Time

	owned map[string]*ownership // keyed by recording name
}

// New creates a Manager. post is used to schedule retry callbacks
// back onto the caller's single-threaded event loop.
func New(adapter ari.Adapter, recordingsDir, format string, logger *slog.Logger, post func(func())) *Manager {
	return &Manager{
		adapter:       adapter,
		recordingsDir: recordingsDir,
		format:        format,
		logger:        logger,
		post:          post,
		now:           time.Now,
		owned:         make(map[string]*ownership),
	}
}

// Name builds the recording name for a call, per §4.4:
// "<callId>-<iso-timestamp-with-:-and-.-replaced-by-->".
func (m *Manager) Name(callID string) string {
	ts := m.now().UTC().Format(time.RFC3339Nano)
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return fmt.Sprintf("%s-%s", callID, ts)
}

// Start begins a bridge recording, at most once per call — the
// caller (the correlator) is responsible for the once-per-call guard
// via the call's RecordingName field.
func (m *Manager) Start(ctx context.Context, callID, bridgeID string) (*ari.Recording, error) {
	name := m.Name(callID)
	rec, err := m.adapter.StartRecording(ctx, bridgeID, ari.RecordingRequest{
		Name:            name,
		Format:          m.format,
		IfExists:        "overwrite",
		MaxDurationSecs: 0,
		TerminateOn:     "none",
	})
	if err != nil {
		return nil, fmt.Errorf("starting recording for call %s: %w", callID, err)
	}
	m.owned[name] = &ownership{callID: callID, recordingName: name}
	return rec, nil
}

// Stop stops the recording associated with bridgeID/recordingName
// (bridge stop-media if the bridge is still known, else the
// recordings API directly) and kicks off presence verification.
// onResolved is called exactly once, with the final canonical path,
// once the file has been confirmed present (immediately, or after
// retries) or the retry budget is exhausted.
func (m *Manager) Stop(ctx context.Context, callID, bridgeID, recordingName string, onResolved func(path string)) {
	if recordingName == "" {
		onResolved("")
		return
	}

	var err error
	if bridgeID != "" {
		err = m.adapter.StopRecordingViaBridge(ctx, bridgeID)
	} else {
		err = m.adapter.StopRecordingViaAPI(ctx, recordingName)
	}
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "not found") {
		m.logger.Warn("recording stop failed", "call_id", callID, "recording", recordingName, "err", err)
	}

	m.verify(ctx, callID, recordingName, 0, onResolved)
}

// verify checks every known search directory for recordingName (with
// any of the common audio extensions) and either resolves onResolved
// with the canonical path, or schedules a retry per §4.4's schedule:
// 1s after attempt 0, 5s after attempt 1, and a final 10s fallback.
func (m *Manager) verify(ctx context.Context, callID, recordingName string, attempt int, onResolved func(path string)) {
	path, found := m.locate(recordingName)
	if found {
		canonical, err := m.ensureCanonical(path, recordingName)
		if err != nil {
			m.logger.Warn("moving recording into canonical directory failed", "call_id", callID, "recording", recordingName, "err", err)
			canonical = path
		}
		delete(m.owned, recordingName)
		onResolved(canonical)
		return
	}

	delay, ok := retryDelay(attempt)
	if !ok {
		m.logger.Warn("recording file never appeared after retries", "call_id", callID, "recording", recordingName)
		delete(m.owned, recordingName)
		onResolved("")
		return
	}

	if own, ok := m.owned[recordingName]; ok {
		own.retryCount = attempt + 1
		own.retryTimer = time.AfterFunc(delay, func() {
			m.post(func() {
				m.verify(ctx, callID, recordingName, attempt+1, onResolved)
			})
		})
	}
}

// retryDelay returns the delay before retry number `attempt` and
// whether a retry should be attempted at all.
func retryDelay(attempt int) (time.Duration, bool) {
	switch attempt {
	case 0:
		return 1 * time.Second, true
	case 1:
		return 5 * time.Second, true
	case 2:
		return 10 * time.Second, true
	default:
		return 0, false
	}
}

// locate searches the known directories for recordingName under any
// common audio extension. Errors other than "not found" (e.g.
// permission errors) are logged at debug level and treated as
// absence, mirroring the reference implementation's silent catch.
func (m *Manager) locate(recordingName string) (string, bool) {
	exts := []string{".wav", ".gsm", ".ulaw", ".alaw", ".sln", ".g722"}
	for _, dir := range searchDirs(m.recordingsDir) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				m.logger.Debug("recording directory scan failed", "dir", dir, "err", err)
			}
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := e.Name()
			base := strings.TrimSuffix(name, filepath.Ext(name))
			if base != recordingName {
				continue
			}
			for _, ext := range exts {
				if strings.EqualFold(filepath.Ext(name), ext) {
					return filepath.Join(dir, name), true
				}
			}
			// Unknown extension but matching base name — still a hit.
			return filepath.Join(dir, name), true
		}
	}
	return "", false
}

// ensureCanonical moves path into m.recordingsDir if it isn't already
// there, falling back to copy+unlink on a cross-device rename error.
func (m *Manager) ensureCanonical(path, recordingName string) (string, error) {
	if filepath.Dir(path) == filepath.Clean(m.recordingsDir) {
		return path, nil
	}
	dest := filepath.Join(m.recordingsDir, filepath.Base(path))

	if err := os.MkdirAll(m.recordingsDir, 0o755); err != nil {
		return path, fmt.Errorf("creating recordings dir: %w", err)
	}

	if err := os.Rename(path, dest); err != nil {
		if isCrossDevice(err) {
			if copyErr := copyThenUnlink(path, dest); copyErr != nil {
				return path, fmt.Errorf("cross-device move fallback failed: %w", copyErr)
			}
			return dest, nil
		}
		return path, fmt.Errorf("renaming recording: %w", err)
	}
	return dest, nil
}

func isCrossDevice(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "cross-device")
}

func copyThenUnlink(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// CancelRetries stops any outstanding retry timer for recordingName
// and forgets its ownership. Call cleanup does not call it: cleanup
// waits for verification to resolve instead.
func (m *Manager) CancelRetries(recordingName string) {
	if own, ok := m.owned[recordingName]; ok && own.retryTimer != nil {
		own.retryTimer.Stop()
	}
	delete(m.owned, recordingName)
}
