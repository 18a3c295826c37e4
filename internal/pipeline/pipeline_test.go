package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image/gif"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"framecast/internal/config"
	"framecast/internal/control"
	"framecast/internal/external"
	"framecast/internal/fallback"
	"framecast/internal/model"
	"framecast/internal/progress"
	"framecast/internal/testutil"
)

type fakeExternal struct {
	mu    sync.Mutex
	calls []external.Job
	err   error
}

func (f *fakeExternal) Encode(_ context.Context, job external.Job, _ *control.State, _ progress.Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, job)
	return f.err
}

type countingFallback struct {
	inner FallbackEncoder
	calls []fallback.Job
}

func (c *countingFallback) Encode(ctx context.Context, job fallback.Job, state *control.State, sink progress.Sink) error {
	c.calls = append(c.calls, job)
	return c.inner.Encode(ctx, job, state, sink)
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.DisableExternal = true
	cfg.PausePoll = time.Millisecond
	cfg.ProgressInterval = 0
	return cfg
}

func folderRequest(in, out string, formats ...model.Format) model.Request {
	return model.Request{
		InputMode: model.InputFolder,
		InputPath: in,
		OutputDir: out,
		FPS:       10,
		Formats:   formats,
	}
}

func TestConvertGIFEndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t)

	in := filepath.Join(t.TempDir(), "clip")
	testutil.WriteSequence(t, in, 10, 64, 64)
	out := t.TempDir()

	results, err := New(testConfig()).Convert(context.Background(), folderRequest(in, out, model.FormatGIF), nil, progress.Discard)
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.True(t, res.Success, res.Error)
	assert.Equal(t, model.FormatGIF, res.Format)
	assert.Equal(t, filepath.Join(out, "clip_64x64.gif"), res.Path)
	assert.Equal(t, res.OriginalSize, res.CompressedSize)
	assert.Positive(t, res.OriginalSize)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	g, err := gif.DecodeAll(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, g.Image, 10)
	assert.Equal(t, 10, g.Delay[0])
	assert.Equal(t, 0, g.LoopCount)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestConvertEmptyFolder(t *testing.T) {
	fb := &countingFallback{inner: fallback.New(fallback.Options{})}
	ext := &fakeExternal{}
	c := New(testConfig(), WithExternal(ext), WithFallback(fb))

	results, err := c.Convert(context.Background(), folderRequest(t.TempDir(), t.TempDir(), model.FormatGIF), nil, progress.Discard)
	require.ErrorIs(t, err, model.ErrInput)
	require.ErrorIs(t, err, model.ErrEmptyInput)
	assert.Empty(t, results)
	assert.Empty(t, ext.calls)
	assert.Empty(t, fb.calls)
}

func TestConvertMixedExtensionsFallsBack(t *testing.T) {
	in := t.TempDir()
	testutil.WritePNG(t, filepath.Join(in, "a.png"), testutil.Gradient(16, 16, 0))
	testutil.WriteJPEG(t, filepath.Join(in, "b.jpg"), testutil.Gradient(16, 16, 1), 0)

	fb := &countingFallback{inner: fallback.New(fallback.Options{})}
	ext := &fakeExternal{err: model.ErrMixedExtensions}
	c := New(testConfig(), WithExternal(ext), WithFallback(fb))

	results, err := c.Convert(context.Background(), folderRequest(in, t.TempDir(), model.FormatGIF), nil, progress.Discard)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success, results[0].Error)
	assert.Len(t, ext.calls, 1)
	assert.Len(t, fb.calls, 1)

	f, err := os.Open(results[0].Path)
	require.NoError(t, err)
	defer f.Close()
	g, err := gif.DecodeAll(f)
	require.NoError(t, err)
	assert.Len(t, g.Image, 2)
}

func TestConvertResultsInRequestOrder(t *testing.T) {
	in := filepath.Join(t.TempDir(), "seq")
	testutil.WriteSequence(t, in, 3, 16, 16)
	req := folderRequest(in, t.TempDir(), model.FormatWebP, model.FormatAPNG, model.FormatGIF)
	req.OutputName = "custom"

	results, err := New(testConfig()).Convert(context.Background(), req, nil, progress.Discard)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, want := range []model.Format{model.FormatWebP, model.FormatAPNG, model.FormatGIF} {
		assert.Equal(t, want, results[i].Format)
		assert.True(t, results[i].Success, results[i].Error)
		assert.Equal(t, filepath.Join(req.OutputDir, "custom"+want.Ext()), results[i].Path)
	}
}

func TestConvertCancelRecordsEveryFormat(t *testing.T) {
	defer goleak.VerifyNone(t)

	in := filepath.Join(t.TempDir(), "seq")
	testutil.WriteSequence(t, in, 6, 16, 16)
	out := t.TempDir()
	state := control.New(time.Millisecond)

	sink := progress.FuncSink(func(e progress.Event) {
		if e.Current >= 2 {
			state.Cancel()
		}
	})

	results, err := New(testConfig()).Convert(context.Background(), folderRequest(in, out, model.FormatGIF, model.FormatAPNG), state, sink)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, model.ErrCancelled.Error())
	}

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConvertResetsPreviousCancel(t *testing.T) {
	in := filepath.Join(t.TempDir(), "seq")
	testutil.WriteSequence(t, in, 2, 8, 8)
	state := control.New(time.Millisecond)
	state.Cancel()

	results, err := New(testConfig()).Convert(context.Background(), folderRequest(in, t.TempDir(), model.FormatGIF), state, progress.Discard)
	require.NoError(t, err)
	assert.True(t, results[0].Success)
}

func TestExternalSuccessSkipsFallback(t *testing.T) {
	in := filepath.Join(t.TempDir(), "seq")
	testutil.WriteSequence(t, in, 2, 8, 8)
	fb := &countingFallback{inner: fallback.New(fallback.Options{})}
	ext := &fakeExternal{}

	req := folderRequest(in, t.TempDir(), model.FormatAPNG)
	req.LoopCount = 2
	_, err := New(testConfig(), WithExternal(ext), WithFallback(fb)).Convert(context.Background(), req, nil, progress.Discard)
	require.NoError(t, err)
	require.Len(t, ext.calls, 1)
	assert.Equal(t, 2, ext.calls[0].Loop)
	assert.Empty(t, fb.calls)
}

func TestLossyAPNGSkipsExternal(t *testing.T) {
	in := filepath.Join(t.TempDir(), "seq")
	testutil.WriteSequence(t, in, 2, 8, 8)
	fb := &countingFallback{inner: fallback.New(fallback.Options{})}
	ext := &fakeExternal{}

	req := folderRequest(in, t.TempDir(), model.FormatAPNG, model.FormatGIF)
	req.Compression = model.Compression{Kind: model.CompressLocal, Quality: 60}
	results, err := New(testConfig(), WithExternal(ext), WithFallback(fb)).Convert(context.Background(), req, nil, progress.Discard)
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Len(t, fb.calls, 1)
	assert.Equal(t, model.FormatAPNG, fb.calls[0].Format)
	assert.True(t, fb.calls[0].Lossy)
	assert.Equal(t, 60, fb.calls[0].Quality)
	require.Len(t, ext.calls, 1)
	assert.Equal(t, model.FormatGIF, ext.calls[0].Format)
}

func TestCancelFromExternalDoesNotFallBack(t *testing.T) {
	in := filepath.Join(t.TempDir(), "seq")
	testutil.WriteSequence(t, in, 2, 8, 8)
	fb := &countingFallback{inner: fallback.New(fallback.Options{})}
	ext := &fakeExternal{err: model.ErrCancelled}

	results, err := New(testConfig(), WithExternal(ext), WithFallback(fb)).Convert(context.Background(), folderRequest(in, t.TempDir(), model.FormatGIF), nil, progress.Discard)
	require.NoError(t, err)
	assert.False(t, results[0].Success)
	assert.Empty(t, fb.calls)
}

func TestCompressionFailureKeepsSuccess(t *testing.T) {
	in := filepath.Join(t.TempDir(), "seq")
	testutil.WriteSequence(t, in, 2, 8, 8)

	req := folderRequest(in, t.TempDir(), model.FormatAPNG)
	req.Compression = model.Compression{Kind: model.CompressRemote, Credential: "key"}
	results, err := New(testConfig()).Convert(context.Background(), req, nil, progress.Discard)
	require.NoError(t, err)

	res := results[0]
	assert.True(t, res.Success)
	assert.Contains(t, res.Error, model.ErrCompressionFailure.Error())
	assert.Equal(t, res.OriginalSize, res.CompressedSize)
	_, statErr := os.Stat(res.Path)
	require.NoError(t, statErr)
}

func TestConvertInvalidRequest(t *testing.T) {
	req := folderRequest(t.TempDir(), t.TempDir(), model.FormatGIF)
	req.FPS = 0
	_, err := New(testConfig()).Convert(context.Background(), req, nil, progress.Discard)
	require.True(t, errors.Is(err, model.ErrInput))
}

func TestBaseName(t *testing.T) {
	set := model.FrameSet{Frames: []model.FrameInfo{{Path: "/x/shot_01.png"}}, Width: 4, Height: 3}
	assert.Equal(t, "shot_01_4x3", BaseName(model.Request{InputMode: model.InputFiles}, set))
	assert.Equal(t, "frames_4x3", BaseName(model.Request{InputMode: model.InputFolder, InputPath: "/a/frames/"}, set))
	assert.Equal(t, "mine", BaseName(model.Request{OutputName: " mine "}, set))
}
