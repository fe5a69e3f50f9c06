package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/media-relay/internal/downloader/domain"
	"github.com/cuongbtq/media-relay/internal/downloader/runner"
	"github.com/cuongbtq/media-relay/internal/downloader/storage"
)

const (
	testChat = int64(42)
	testURL  = "https://www.youtube.com/watch?v=abc"
	waitFor  = 5 * time.Second
)

type fakeRunner struct {
	mu       sync.Mutex
	info     domain.ExtractionResult
	probeErr error
	requests []runner.Request
	download func(ctx context.Context, req runner.Request, attempt int) error
}

func (f *fakeRunner) Probe(ctx context.Context, url string) (domain.ExtractionResult, error) {
	if f.probeErr != nil {
		return domain.ExtractionResult{}, &domain.ProbeError{URL: url, Err: f.probeErr}
	}
	return f.info, nil
}

func (f *fakeRunner) Download(ctx context.Context, req runner.Request) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	attempt := len(f.requests)
	f.mu.Unlock()

	if f.download == nil {
		return writeOutput(req, "clip.mp4", 1024)
	}
	return f.download(ctx, req, attempt)
}

func (f *fakeRunner) calls() []runner.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runner.Request(nil), f.requests...)
}

// writeOutput creates the file the extraction tool would have written
func writeOutput(req runner.Request, name string, size int) error {
	title, ext := strings.TrimSuffix(name, filepath.Ext(name)), strings.TrimPrefix(filepath.Ext(name), ".")
	path := strings.NewReplacer("%(title)s", title, "%(ext)s", ext).Replace(req.OutputTemplate)
	return os.WriteFile(path, make([]byte, size), 0o644)
}

type fakeReporter struct {
	progress  chan domain.ProgressUpdate
	completed chan domain.Artifact
	failed    chan string
}

func newReporter() *fakeReporter {
	return &fakeReporter{
		progress:  make(chan domain.ProgressUpdate, 16),
		completed: make(chan domain.Artifact, 1),
		failed:    make(chan string, 1),
	}
}

func (r *fakeReporter) Progress(u domain.ProgressUpdate) error {
	select {
	case r.progress <- u:
	default:
	}
	return nil
}

func (r *fakeReporter) Completed(a domain.Artifact) { r.completed <- a }
func (r *fakeReporter) Failed(msg string)           { r.failed <- msg }

func (r *fakeReporter) waitCompleted(t *testing.T) domain.Artifact {
	t.Helper()
	select {
	case a := <-r.completed:
		return a
	case msg := <-r.failed:
		t.Fatalf("expected completion, got failure %q", msg)
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for completion")
	}
	return domain.Artifact{}
}

func (r *fakeReporter) waitFailed(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-r.failed:
		return msg
	case a := <-r.completed:
		t.Fatalf("expected failure, got artifact %s", a.Name)
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for failure")
	}
	return ""
}

func newTestSupervisor(t *testing.T, fr *fakeRunner, mutate func(*Config)) (*Supervisor, *storage.Storage) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.NewStorage(t.TempDir(), logger)
	require.NoError(t, err)

	cfg := &Config{
		Logger:                   logger,
		Runner:                   fr,
		Storage:                  store,
		MaxConcurrent:            3,
		DownloadTimeout:          time.Minute,
		MaxDurationMinutes:       20,
		AutoDownloadUnderMinutes: 10,
		Quality:                  "best[height<=720]",
		CleanupAfter:             time.Hour,
		EnabledSites:             map[string]bool{"youtube": true, "vimeo": false},
	}
	if mutate != nil {
		mutate(cfg)
	}

	s := New(cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, store
}

func shortClip() domain.ExtractionResult {
	return domain.ExtractionResult{Title: "Clip", Duration: 120, Uploader: "Chan", EstimatedSize: 1024}
}

func TestSubmit_AutoDownloadCompletes(t *testing.T) {
	fr := &fakeRunner{info: shortClip()}
	s, store := newTestSupervisor(t, fr, nil)
	rep := newReporter()

	result, err := s.Submit(context.Background(), testChat, testURL, rep)
	require.NoError(t, err)
	assert.True(t, result.AutoDownload)
	assert.False(t, result.AwaitingChoice)
	assert.NotEmpty(t, result.JobID)

	artifact := rep.waitCompleted(t)
	assert.Empty(t, s.Status(), "job must be released before completion is reported")
	assert.Equal(t, result.JobID, artifact.JobID)
	assert.Equal(t, domain.FormatVideo, artifact.Format)
	assert.Equal(t, int64(1024), artifact.Size)
	assert.True(t, strings.HasPrefix(artifact.Name, "42_"))
	assert.True(t, strings.HasSuffix(artifact.Name, "_clip.mp4"))
	assert.Equal(t, "Clip", artifact.Title)
	assert.FileExists(t, filepath.Join(store.Dir(), artifact.Name))

	calls := fr.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "best[height<=720]/best/worst", calls[0].Selector)
}

func TestSubmit_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		runner  *fakeRunner
		wantErr error
		wantMsg string
	}{
		{
			name:    "unsupported host",
			url:     "https://example.com/video",
			runner:  &fakeRunner{info: shortClip()},
			wantErr: domain.ErrUnsupportedURL,
			wantMsg: "URL not supported.",
		},
		{
			name:    "disabled site",
			url:     "https://vimeo.com/123",
			runner:  &fakeRunner{info: shortClip()},
			wantErr: domain.ErrUnsupportedURL,
			wantMsg: "URL not supported.",
		},
		{
			name:    "probe failure",
			url:     testURL,
			runner:  &fakeRunner{probeErr: errors.New("exit status 1")},
			wantMsg: "Could not get video info.",
		},
		{
			name:    "too long",
			url:     testURL,
			runner:  &fakeRunner{info: domain.ExtractionResult{Title: "Long", Duration: 1800}},
			wantErr: domain.ErrDurationExceeded,
			wantMsg: "Video too long (30.0 min). Max: 20 min.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSupervisor(t, tt.runner, nil)

			_, err := s.Submit(context.Background(), testChat, tt.url, newReporter())
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantMsg, domain.UserMessage(err))
			assert.Empty(t, s.Status())
			assert.Empty(t, tt.runner.calls())
		})
	}
}

func TestSubmit_AdmissionLimits(t *testing.T) {
	fr := &fakeRunner{info: domain.ExtractionResult{Title: "Talk", Duration: 900}}
	s, _ := newTestSupervisor(t, fr, func(c *Config) { c.MaxConcurrent = 1 })

	result, err := s.Submit(context.Background(), 1, testURL, newReporter())
	require.NoError(t, err)
	require.True(t, result.AwaitingChoice)

	_, err = s.Submit(context.Background(), 1, testURL, newReporter())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMaxDownloadsReached)

	_, err = s.Submit(context.Background(), 2, testURL, newReporter())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMaxDownloadsReached)
	assert.Equal(t, "Max downloads (1) reached.", domain.UserMessage(err))
	assert.Len(t, s.Status(), 1)
}

func TestSubmit_DuplicateChat(t *testing.T) {
	fr := &fakeRunner{info: domain.ExtractionResult{Title: "Talk", Duration: 900}}
	s, _ := newTestSupervisor(t, fr, nil)

	_, err := s.Submit(context.Background(), testChat, testURL, newReporter())
	require.NoError(t, err)

	_, err = s.Submit(context.Background(), testChat, testURL, newReporter())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDownloadInProgress)
	assert.Equal(t, "Download in progress.", domain.UserMessage(err))
}

func TestChooseFormat_Audio(t *testing.T) {
	fr := &fakeRunner{
		info: domain.ExtractionResult{Title: "Song", Duration: 900},
		download: func(ctx context.Context, req runner.Request, attempt int) error {
			return writeOutput(req, "song.mp3", 2048)
		},
	}
	s, _ := newTestSupervisor(t, fr, nil)
	rep := newReporter()

	result, err := s.Submit(context.Background(), testChat, testURL, rep)
	require.NoError(t, err)
	require.True(t, result.AwaitingChoice)

	status := s.Status()
	require.Len(t, status, 1)
	assert.Equal(t, domain.StateAwaitingChoice, status[0].State)

	require.NoError(t, s.ChooseFormat(context.Background(), testChat, domain.FormatAudio, rep))

	artifact := rep.waitCompleted(t)
	assert.Equal(t, domain.FormatAudio, artifact.Format)
	assert.True(t, strings.HasSuffix(artifact.Name, "_song.mp3"))
	assert.Equal(t, "Song", artifact.Title)

	calls := fr.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, domain.FormatAudio, calls[0].Format)
	assert.Empty(t, calls[0].Selector)
}

func TestChooseFormat_NormalizesCase(t *testing.T) {
	tests := []struct {
		name       string
		input      domain.Format
		want       domain.Format
		wantCalls  int
		wantSuffix string
	}{
		{name: "mixed case audio", input: "Audio", want: domain.FormatAudio, wantCalls: 1, wantSuffix: "_talk.mp3"},
		{name: "upper case video keeps the retry", input: "VIDEO", want: domain.FormatVideo, wantCalls: 2, wantSuffix: "_talk.webm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr := &fakeRunner{
				info: domain.ExtractionResult{Title: "Talk", Duration: 900},
				download: func(ctx context.Context, req runner.Request, attempt int) error {
					if req.Format == domain.FormatAudio {
						return writeOutput(req, "talk.mp3", 512)
					}
					if attempt == 1 {
						return &domain.DownloadError{ExitCode: 1, Retryable: true}
					}
					return writeOutput(req, "talk.webm", 512)
				},
			}
			s, _ := newTestSupervisor(t, fr, nil)
			rep := newReporter()

			_, err := s.Submit(context.Background(), testChat, testURL, rep)
			require.NoError(t, err)
			require.NoError(t, s.ChooseFormat(context.Background(), testChat, tt.input, rep))

			artifact := rep.waitCompleted(t)
			assert.Equal(t, tt.want, artifact.Format)
			assert.True(t, strings.HasSuffix(artifact.Name, tt.wantSuffix))

			calls := fr.calls()
			require.Len(t, calls, tt.wantCalls)
			for _, call := range calls {
				assert.Equal(t, tt.want, call.Format)
			}
		})
	}
}

func TestChooseFormat_NoPendingChoice(t *testing.T) {
	s, _ := newTestSupervisor(t, &fakeRunner{info: shortClip()}, nil)

	err := s.ChooseFormat(context.Background(), testChat, domain.FormatVideo, newReporter())
	assert.ErrorIs(t, err, domain.ErrNoPendingChoice)

	err = s.ChooseFormat(context.Background(), testChat, domain.Format("gif"), newReporter())
	assert.ErrorIs(t, err, domain.ErrInvalidFormat)
}

func TestDownload_FormatMismatchRetriesOnceWithBest(t *testing.T) {
	fr := &fakeRunner{
		info: shortClip(),
		download: func(ctx context.Context, req runner.Request, attempt int) error {
			if attempt == 1 {
				return &domain.DownloadError{ExitCode: 1, Retryable: true}
			}
			return writeOutput(req, "clip.webm", 4096)
		},
	}
	s, _ := newTestSupervisor(t, fr, nil)
	rep := newReporter()

	_, err := s.Submit(context.Background(), testChat, testURL, rep)
	require.NoError(t, err)

	artifact := rep.waitCompleted(t)
	assert.Equal(t, int64(4096), artifact.Size)

	calls := fr.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "best[height<=720]/best/worst", calls[0].Selector)
	assert.Equal(t, domain.FallbackSelector, calls[1].Selector)
	assert.Equal(t, calls[0].OutputTemplate, calls[1].OutputTemplate)
}

func TestDownload_RetryFailureIsFinal(t *testing.T) {
	fr := &fakeRunner{
		info: shortClip(),
		download: func(ctx context.Context, req runner.Request, attempt int) error {
			return &domain.DownloadError{ExitCode: 1, Retryable: true}
		},
	}
	s, _ := newTestSupervisor(t, fr, nil)
	rep := newReporter()

	_, err := s.Submit(context.Background(), testChat, testURL, rep)
	require.NoError(t, err)

	assert.Equal(t, "Download failed.", rep.waitFailed(t))
	assert.Len(t, fr.calls(), 2)
	assert.Empty(t, s.Status())
}

func TestDownload_AudioIsNotRetried(t *testing.T) {
	fr := &fakeRunner{
		info: domain.ExtractionResult{Title: "Song", Duration: 900},
		download: func(ctx context.Context, req runner.Request, attempt int) error {
			return &domain.DownloadError{ExitCode: 1, Retryable: true}
		},
	}
	s, _ := newTestSupervisor(t, fr, nil)
	rep := newReporter()

	_, err := s.Submit(context.Background(), testChat, testURL, rep)
	require.NoError(t, err)
	require.NoError(t, s.ChooseFormat(context.Background(), testChat, domain.FormatAudio, rep))

	assert.Equal(t, "Download failed.", rep.waitFailed(t))
	assert.Len(t, fr.calls(), 1)
}

func TestDownload_GenericFailureIsNotRetried(t *testing.T) {
	fr := &fakeRunner{
		info: shortClip(),
		download: func(ctx context.Context, req runner.Request, attempt int) error {
			return &domain.DownloadError{ExitCode: 2, Stderr: "ERROR: Video unavailable"}
		},
	}
	s, _ := newTestSupervisor(t, fr, nil)
	rep := newReporter()

	_, err := s.Submit(context.Background(), testChat, testURL, rep)
	require.NoError(t, err)

	msg := rep.waitFailed(t)
	assert.Equal(t, "Download failed.", msg)
	assert.NotContains(t, msg, "unavailable")
	assert.Len(t, fr.calls(), 1)
}

func TestDownload_TimeoutReleasesJob(t *testing.T) {
	fr := &fakeRunner{
		info: shortClip(),
		download: func(ctx context.Context, req runner.Request, attempt int) error {
			if err := writeOutput(runner.Request{OutputTemplate: req.OutputTemplate}, "clip.mp4.part", 10); err != nil {
				return err
			}
			<-ctx.Done()
			return ctx.Err()
		},
	}
	s, store := newTestSupervisor(t, fr, func(c *Config) { c.DownloadTimeout = 200 * time.Millisecond })
	rep := newReporter()

	_, err := s.Submit(context.Background(), testChat, testURL, rep)
	require.NoError(t, err)

	assert.Equal(t, "Download timed out.", rep.waitFailed(t))
	assert.Empty(t, s.Status())
	assert.Equal(t, 0, store.Count(), "partial output must be removed")

	_, err = s.Submit(context.Background(), testChat, testURL, newReporter())
	assert.NoError(t, err, "chat must be free again after timeout")
}

func TestDownload_OutputNotFound(t *testing.T) {
	fr := &fakeRunner{
		info: shortClip(),
		download: func(ctx context.Context, req runner.Request, attempt int) error {
			return nil
		},
	}
	s, _ := newTestSupervisor(t, fr, nil)
	rep := newReporter()

	_, err := s.Submit(context.Background(), testChat, testURL, rep)
	require.NoError(t, err)

	assert.Equal(t, "Download failed.", rep.waitFailed(t))
	assert.Empty(t, s.Status())
}

func TestDownload_FileTooLarge(t *testing.T) {
	fr := &fakeRunner{
		info: shortClip(),
		download: func(ctx context.Context, req runner.Request, attempt int) error {
			return writeOutput(req, "clip.mp4", 2*bytesPerMB)
		},
	}
	s, store := newTestSupervisor(t, fr, func(c *Config) { c.MaxFileSizeMB = 1 })
	rep := newReporter()

	_, err := s.Submit(context.Background(), testChat, testURL, rep)
	require.NoError(t, err)

	assert.Equal(t, "File too large (2.0 MB). Max: 1 MB", rep.waitFailed(t))
	assert.Equal(t, 0, store.Count())
}

func TestStatus_VisibleWhileDownloading(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	fr := &fakeRunner{
		info: shortClip(),
		download: func(ctx context.Context, req runner.Request, attempt int) error {
			close(started)
			<-release
			return writeOutput(req, "clip.mp4", 10)
		},
	}
	s, _ := newTestSupervisor(t, fr, nil)
	rep := newReporter()

	result, err := s.Submit(context.Background(), testChat, testURL, rep)
	require.NoError(t, err)
	<-started

	status := s.Status()
	require.Len(t, status, 1)
	assert.Equal(t, result.JobID, status[0].JobID)
	assert.Equal(t, testChat, status[0].ChatID)
	assert.Equal(t, domain.StateDownloading, status[0].State)
	assert.Equal(t, domain.FormatVideo, status[0].Format)

	close(release)
	rep.waitCompleted(t)
	assert.Empty(t, s.Status())
}

func TestCancel_AwaitingChoice(t *testing.T) {
	fr := &fakeRunner{info: domain.ExtractionResult{Title: "Talk", Duration: 900}}
	s, _ := newTestSupervisor(t, fr, nil)

	_, err := s.Submit(context.Background(), testChat, testURL, newReporter())
	require.NoError(t, err)

	require.NoError(t, s.Cancel(testChat))
	assert.Empty(t, s.Status())
	assert.Empty(t, fr.calls())

	assert.ErrorIs(t, s.Cancel(testChat), domain.ErrNoPendingChoice)
	assert.ErrorIs(t, s.ChooseFormat(context.Background(), testChat, domain.FormatVideo, newReporter()), domain.ErrNoPendingChoice)
}

func TestCancel_RunningDownload(t *testing.T) {
	started := make(chan struct{})
	fr := &fakeRunner{
		info: shortClip(),
		download: func(ctx context.Context, req runner.Request, attempt int) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	}
	s, _ := newTestSupervisor(t, fr, nil)
	rep := newReporter()

	_, err := s.Submit(context.Background(), testChat, testURL, rep)
	require.NoError(t, err)
	<-started

	require.NoError(t, s.Cancel(testChat))
	assert.Equal(t, "Cancelled.", rep.waitFailed(t))
	assert.Empty(t, s.Status())
}

func TestStart_JobRemovedBeforeTransfer(t *testing.T) {
	fr := &fakeRunner{info: shortClip()}
	s, _ := newTestSupervisor(t, fr, nil)
	rep := newReporter()

	job := domain.Job{ID: "gone", ChatID: testChat, URL: testURL, Format: domain.FormatVideo, State: domain.StateDownloading}

	assert.False(t, s.start(job, rep))
	assert.Empty(t, fr.calls())
	select {
	case msg := <-rep.failed:
		t.Fatalf("unexpected failure report %q", msg)
	case a := <-rep.completed:
		t.Fatalf("unexpected completion %s", a.Name)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChoice_Expires(t *testing.T) {
	fr := &fakeRunner{info: domain.ExtractionResult{Title: "Talk", Duration: 900}}
	s, _ := newTestSupervisor(t, fr, func(c *Config) { c.ChoiceTimeout = 50 * time.Millisecond })
	rep := newReporter()

	_, err := s.Submit(context.Background(), testChat, testURL, rep)
	require.NoError(t, err)

	assert.Equal(t, "Request expired.", rep.waitFailed(t))
	assert.Empty(t, s.Status())
}

func TestProgress_ReportsGrowth(t *testing.T) {
	rep := newReporter()
	fr := &fakeRunner{info: shortClip()}
	fr.download = func(ctx context.Context, req runner.Request, attempt int) error {
		if err := writeOutput(req, "clip.mp4.part", bytesPerMB); err != nil {
			return err
		}
		select {
		case <-rep.progress:
		case <-time.After(waitFor):
			return errors.New("no progress update")
		}
		return writeOutput(req, "clip.mp4", bytesPerMB)
	}
	s, _ := newTestSupervisor(t, fr, func(c *Config) {
		c.ShowProgress = true
		c.ProgressInterval = time.Second
	})

	_, err := s.Submit(context.Background(), testChat, testURL, rep)
	require.NoError(t, err)

	artifact := rep.waitCompleted(t)
	assert.Equal(t, int64(bytesPerMB), artifact.Size)
}

func TestReleaseArtifact(t *testing.T) {
	fr := &fakeRunner{info: shortClip()}
	s, store := newTestSupervisor(t, fr, nil)
	rep := newReporter()

	_, err := s.Submit(context.Background(), testChat, testURL, rep)
	require.NoError(t, err)
	artifact := rep.waitCompleted(t)

	path, size, err := s.OpenArtifact(testChat, artifact.Name)
	require.NoError(t, err)
	assert.Equal(t, artifact.Size, size)
	assert.Equal(t, filepath.Join(store.Dir(), artifact.Name), path)

	_, _, err = s.OpenArtifact(testChat+1, artifact.Name)
	assert.ErrorIs(t, err, domain.ErrInvalidArtifact)
	assert.ErrorIs(t, s.ReleaseArtifact(testChat+1, artifact.Name), domain.ErrInvalidArtifact)
	assert.FileExists(t, path)

	require.NoError(t, s.ReleaseArtifact(testChat, artifact.Name))
	assert.NoFileExists(t, path)

	assert.ErrorIs(t, s.ReleaseArtifact(testChat, "../etc/passwd"), domain.ErrInvalidArtifact)
	assert.ErrorIs(t, s.ReleaseArtifact(testChat, artifact.Name), domain.ErrOutputNotFound)
}

func TestReleaseArtifact_RunningJobPartialIsProtected(t *testing.T) {
	started := make(chan string, 1)
	fr := &fakeRunner{
		info: shortClip(),
		download: func(ctx context.Context, req runner.Request, attempt int) error {
			if err := writeOutput(req, "clip.mp4.part", 64); err != nil {
				return err
			}
			started <- strings.NewReplacer("%(title)s", "clip", "%(ext)s", "mp4.part").Replace(req.OutputTemplate)
			<-ctx.Done()
			return ctx.Err()
		},
	}
	s, _ := newTestSupervisor(t, fr, nil)
	rep := newReporter()

	_, err := s.Submit(context.Background(), testChat, testURL, rep)
	require.NoError(t, err)
	partial := <-started

	assert.ErrorIs(t, s.ReleaseArtifact(testChat, filepath.Base(partial)), domain.ErrInvalidArtifact)
	assert.FileExists(t, partial)

	require.NoError(t, s.Cancel(testChat))
	assert.Equal(t, "Cancelled.", rep.waitFailed(t))
}

func TestRequestCleanup(t *testing.T) {
	s, store := newTestSupervisor(t, &fakeRunner{}, nil)

	old := filepath.Join(store.Dir(), "1_1_old.mp4")
	fresh := filepath.Join(store.Dir(), "1_2_fresh.mp4")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	removed, err := s.RequestCleanup()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
}

func TestShutdown_CancelsRunningJobs(t *testing.T) {
	started := make(chan struct{})
	fr := &fakeRunner{
		info: shortClip(),
		download: func(ctx context.Context, req runner.Request, attempt int) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	}
	s, _ := newTestSupervisor(t, fr, nil)
	rep := newReporter()

	_, err := s.Submit(context.Background(), testChat, testURL, rep)
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	assert.Equal(t, "Cancelled.", rep.waitFailed(t))
	assert.Empty(t, s.Status())
}
