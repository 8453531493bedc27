package sources

import (
	"context"
	"fmt"
)

// GitHubRelease is the subset of the releases API response generators use.
type GitHubRelease struct {
	TagName    string        `json:"tag_name"`
	Prerelease bool          `json:"prerelease"`
	Body       string        `json:"body"`
	Assets     []GitHubAsset `json:"assets"`
}

// GitHubAsset is one downloadable file attached to a release.
type GitHubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               uint64 `json:"size"`
}

// FetchGitHubReleases downloads and decodes a releases API listing. An
// unreachable or undecodable listing is ErrUnavailable.
func FetchGitHubReleases(ctx context.Context, f Fetcher, rawURL string) ([]GitHubRelease, error) {
	var releases []GitHubRelease
	if !f.FetchJSON(ctx, rawURL, &releases) {
		return nil, fmt.Errorf("fetch releases %s: %w", rawURL, ErrUnavailable)
	}
	return releases, nil
}
