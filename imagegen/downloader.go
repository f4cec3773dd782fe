package imagegen

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"eink_backend/core"
)

// maxAssetSize guards against runaway downloads; generated images are a
// few hundred kilobytes.
const maxAssetSize = 16 << 20

// Downloader retrieves generated assets from the temporary URLs the
// provider returns. URLs expire quickly, so the asset is fetched
// immediately and held in memory for the rasterizer; nothing touches
// disk. At most one redirect is followed.
//
// Thread safety: Downloader is safe for concurrent use; each download
// creates its own request.
type Downloader struct {
	client *http.Client
}

// NewDownloader creates a Downloader using the configured TLS settings
// and download timeout.
func NewDownloader(cfg *core.Config) *Downloader {
	client := core.GetHTTPClient(cfg, cfg.DownloadTimeout)
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > 1 {
			return fmt.Errorf("stopped after 1 redirect")
		}
		return nil
	}
	return &Downloader{client: client}
}

// NewDownloaderWithClient creates a Downloader over an explicit HTTP
// client. Useful for testing.
func NewDownloaderWithClient(client *http.Client) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Downloader{client: client}
}

// Download fetches the binary asset at url.
func (d *Downloader) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("imagegen: build download request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imagegen: download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, fmt.Errorf("imagegen: download HTTP %d: %s", resp.StatusCode, body)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize))
	if err != nil {
		return nil, fmt.Errorf("imagegen: read asset: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("imagegen: empty asset")
	}
	return data, nil
}
