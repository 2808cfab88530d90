package updater

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Release is the subset of the GitHub release payload the updater needs.
type Release struct {
	TagName    string  `json:"tag_name"`
	Name       string  `json:"name"`
	Body       string  `json:"body"`
	Prerelease bool    `json:"prerelease"`
	Assets     []Asset `json:"assets"`
}

// Version is the release tag without its leading "v".
func (r *Release) Version() string {
	return strings.TrimPrefix(r.TagName, "v")
}

// Asset is one downloadable file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// releaseClient talks to the GitHub releases API. Requests are rate
// limited and routed through a circuit breaker so a flapping API does
// not turn every scheduled check into a slow failure.
type releaseClient struct {
	http    *http.Client
	baseURL string
	owner   string
	repo    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*Release]
}

func newReleaseClient(owner, repo, baseURL string) *releaseClient {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &releaseClient{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		owner:   owner,
		repo:    repo,
		// GitHub allows 60 unauthenticated requests per hour; one check
		// per minute with a small burst stays well inside that.
		limiter: rate.NewLimiter(rate.Every(time.Minute), 3),
		breaker: gobreaker.NewCircuitBreaker[*Release](gobreaker.Settings{
			Name:        "github-releases",
			MaxRequests: 1,
			Timeout:     2 * time.Minute,
		}),
	}
}

// latest fetches the newest non-draft release.
func (c *releaseClient) latest(ctx context.Context) (*Release, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return c.breaker.Execute(func() (*Release, error) {
		url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.baseURL, c.owner, c.repo)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/vnd.github+json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch latest release: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch latest release: unexpected status %d", resp.StatusCode)
		}

		var release Release
		if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
			return nil, fmt.Errorf("parse release: %w", err)
		}
		return &release, nil
	})
}

// isNewer reports whether candidate is a strictly newer semantic version
// than current. Unparseable versions never trigger an update.
func isNewer(current, candidate string) bool {
	cur, err := semver.NewVersion(strings.TrimPrefix(current, "v"))
	if err != nil {
		return false
	}
	cand, err := semver.NewVersion(strings.TrimPrefix(candidate, "v"))
	if err != nil {
		return false
	}
	return cand.GreaterThan(cur)
}

// platformAsset picks the release asset built for this OS and
// architecture by matching both names in the asset filename.
func platformAsset(r *Release) (Asset, bool) {
	for _, a := range r.Assets {
		name := strings.ToLower(a.Name)
		if strings.Contains(name, runtime.GOOS) && strings.Contains(name, runtime.GOARCH) {
			return a, true
		}
	}
	return Asset{}, false
}

// checksumAsset finds the checksums file published alongside the
// binaries.
func checksumAsset(r *Release) (Asset, bool) {
	for _, a := range r.Assets {
		name := strings.ToLower(a.Name)
		if strings.Contains(name, "checksums") || strings.HasSuffix(name, ".sha256") {
			return a, true
		}
	}
	return Asset{}, false
}

// download streams an asset to destDir, reporting progress and hashing
// the stream as it goes. It returns the file path and the hex SHA-256 of
// the bytes written.
func (c *releaseClient) download(ctx context.Context, asset Asset, destDir string, progress func(received, total int64)) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.BrowserDownloadURL, nil)
	if err != nil {
		return "", "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("download %s: %w", asset.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("download %s: unexpected status %d", asset.Name, resp.StatusCode)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create download dir: %w", err)
	}
	path := filepath.Join(destDir, asset.Name)
	f, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	hash := sha256.New()
	var received int64
	buf := make([]byte, 64<<10)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return "", "", fmt.Errorf("write %s: %w", path, err)
			}
			hash.Write(buf[:n])
			received += int64(n)
			if progress != nil {
				progress(received, resp.ContentLength)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", "", fmt.Errorf("download %s: %w", asset.Name, readErr)
		}
	}

	return path, hex.EncodeToString(hash.Sum(nil)), nil
}

// fetchChecksum downloads the release's checksum file and returns the
// expected hex digest for the named asset. The file format is the usual
// "<hex>  <filename>" line per asset.
func (c *releaseClient) fetchChecksum(ctx context.Context, r *Release, assetName string) (string, error) {
	sums, ok := checksumAsset(r)
	if !ok {
		return "", fmt.Errorf("release %s publishes no checksums", r.TagName)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sums.BrowserDownloadURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch checksums: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch checksums: unexpected status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 2 && fields[1] == assetName {
			return strings.ToLower(fields[0]), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read checksums: %w", err)
	}
	return "", fmt.Errorf("no checksum entry for %s", assetName)
}
