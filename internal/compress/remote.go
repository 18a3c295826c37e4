package compress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	xlog "framecast/internal/log"
	"framecast/internal/metrics"
	"framecast/internal/model"
)

const (
	defaultRemoteTimeout = 60 * time.Second
	maxErrorBody         = 4 << 10
)

type RemoteOptions struct {
	Endpoint   string
	Credential string
	Timeout    time.Duration
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// Remote uploads the output to a compression service and replaces it with
// the service's result.
type Remote struct {
	endpoint   string
	credential string
	client     *http.Client
	logger     zerolog.Logger
}

func NewRemote(opts RemoteOptions) *Remote {
	client := opts.Client
	if client == nil {
		client = newClient(opts.Timeout)
	}
	return &Remote{
		endpoint:   opts.Endpoint,
		credential: opts.Credential,
		client:     client,
		logger:     xlog.WithComponent("compress"),
	}
}

func newClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			TLSHandshakeTimeout:   10 * time.Second,
			IdleConnTimeout:       30 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
}

type shrinkResponse struct {
	Output struct {
		URL string `json:"url"`
	} `json:"output"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (r *Remote) Compress(ctx context.Context, format model.Format, path string) (Stats, error) {
	size, err := fileSize(path)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Original: size, Compressed: size}
	if format == model.FormatAPNG {
		return stats, fmt.Errorf("%w: %s", model.ErrUnsupportedPayload, format)
	}
	if r.endpoint == "" {
		return stats, model.CompressionError(errors.New("no remote endpoint configured"))
	}

	url, err := r.upload(ctx, path)
	if err != nil {
		return stats, model.CompressionError(err)
	}
	n, err := r.download(ctx, url, path)
	if err != nil {
		return stats, model.CompressionError(err)
	}

	stats.Compressed = n
	metrics.AddBytesSaved(model.CompressRemote.String(), stats.Saved())
	r.logger.Info().Str(xlog.FieldPath, path).Int64("original", size).Int64("compressed", n).Msg("remote compression complete")
	return stats, nil
}

// upload streams path as the "file" field of a multipart form and returns
// the result URL.
func (r *Remote) upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	written := make(chan struct{})
	go func() {
		defer close(written)
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, pr)
	if err != nil {
		pr.CloseWithError(err)
		<-written
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.SetBasicAuth(r.credential, "")

	resp, err := r.client.Do(req)
	// Unblock the writer goroutine whatever happened to the request.
	pr.CloseWithError(errors.New("request finished"))
	<-written
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("service returned %s: %s", resp.Status, body)
	}

	var out shrinkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Output.URL == "" {
		return "", errors.New("response carries no output url")
	}
	return out.Output.URL, nil
}

func (r *Remote) download(ctx context.Context, url, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download returned %s", resp.Status)
	}

	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return 0, err
	}
	defer func() { _ = pf.Cleanup() }()

	n, err := io.Copy(pf, resp.Body)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	if n == 0 {
		return 0, errors.New("download was empty")
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return 0, err
	}
	return n, nil
}
