// Package updater finds, downloads and installs new codecheck releases.
package updater

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

// DefaultTimeout bounds the release lookup. Downloads are bounded by ctx only.
const DefaultTimeout = 30 * time.Second

// ErrAssetNotFound is returned when a release lacks the configured asset.
var ErrAssetNotFound = errors.New("release has no matching asset")

// UpdateError wraps every failure of the update flow with the step that failed.
type UpdateError struct {
	Op  string
	Err error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("update %s: %v", e.Op, e.Err)
}

func (e *UpdateError) Unwrap() error {
	return e.Err
}

// Asset is a downloadable file attached to a release.
type Asset struct {
	Name string `json:"name"`
	URL  string `json:"browser_download_url"`
	Size int64  `json:"size"`
}

// Release is the subset of the release-listing document codecheck reads.
type Release struct {
	Tag    string  `json:"tag_name"`
	Name   string  `json:"name"`
	Assets []Asset `json:"assets"`
}

// Asset returns the asset called name.
func (r *Release) Asset(name string) (Asset, bool) {
	for _, a := range r.Assets {
		if a.Name == name {
			return a, true
		}
	}
	return Asset{}, false
}

// Status is the result of comparing the running version with the latest release.
type Status struct {
	Current   string
	Latest    string
	Available bool
	Asset     Asset
}

// Client talks to the release endpoint.
type Client struct {
	URL       string
	AssetName string
	HTTP      *http.Client
	Logger    *slog.Logger
}

// NewClient creates a client for the release listing at url.
func NewClient(url, assetName string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		URL:       url,
		AssetName: assetName,
		HTTP:      &http.Client{},
		Logger:    logger,
	}
}

// Latest fetches the latest release.
func (c *Client) Latest(ctx context.Context) (*Release, error) {
	if c.URL == "" {
		return nil, &UpdateError{Op: "check", Err: errors.New("no release URL configured")}
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, &UpdateError{Op: "check", Err: err}
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &UpdateError{Op: "check", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpdateError{Op: "check", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, &UpdateError{Op: "check", Err: fmt.Errorf("failed to parse release: %w", err)}
	}
	return &rel, nil
}

// Check reports whether the latest release is newer than current.
func (c *Client) Check(ctx context.Context, current string) (*Status, error) {
	cur := canonical(current)
	if !semver.IsValid(cur) {
		return nil, &UpdateError{Op: "check", Err: fmt.Errorf("running version %q is not a release version", current)}
	}

	rel, err := c.Latest(ctx)
	if err != nil {
		return nil, err
	}
	latest := canonical(rel.Tag)
	if !semver.IsValid(latest) {
		return nil, &UpdateError{Op: "check", Err: fmt.Errorf("release tag %q is not a version", rel.Tag)}
	}

	st := &Status{
		Current:   cur,
		Latest:    latest,
		Available: semver.Compare(latest, cur) > 0,
	}
	if !st.Available {
		return st, nil
	}

	asset, ok := rel.Asset(c.AssetName)
	if !ok {
		return nil, &UpdateError{Op: "check", Err: fmt.Errorf("%w: %s", ErrAssetNotFound, c.AssetName)}
	}
	st.Asset = asset
	c.Logger.Info("update available", slog.String("current", cur), slog.String("latest", latest))
	return st, nil
}

// Download streams asset to dest. The data goes to a temporary file in the
// same directory first and is renamed into place only when complete, so a
// failed download never leaves a partial dest behind. progress may be nil.
func (c *Client) Download(ctx context.Context, asset Asset, dest string, progress func(done, total int64)) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URL, nil)
	if err != nil {
		return "", &UpdateError{Op: "download", Err: err}
	}
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", &UpdateError{Op: "download", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &UpdateError{Op: "download", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	total := resp.ContentLength
	if total <= 0 {
		total = asset.Size
	}

	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return "", &UpdateError{Op: "download", Err: err}
	}
	tmpName := tmp.Name()
	fail := func(err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", &UpdateError{Op: "download", Err: err}
	}

	pw := &progressWriter{total: total, progress: progress}
	n, err := io.Copy(io.MultiWriter(tmp, pw), resp.Body)
	if err != nil {
		return fail(err)
	}
	if total > 0 && n != total {
		return fail(fmt.Errorf("short download: got %d of %d bytes", n, total))
	}
	if err := tmp.Chmod(0o755); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		return fail(err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return "", &UpdateError{Op: "download", Err: err}
	}

	c.Logger.Info("update downloaded", slog.String("asset", asset.Name), slog.Int64("bytes", n), slog.String("path", dest))
	return dest, nil
}

type progressWriter struct {
	done     int64
	total    int64
	progress func(done, total int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.done += int64(len(b))
	if p.progress != nil {
		p.progress(p.done, p.total)
	}
	return len(b), nil
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
