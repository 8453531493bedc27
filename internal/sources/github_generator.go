package sources

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/isocatalog/internal/catalog"
	"github.com/JakeFAU/isocatalog/internal/fanout"
)

// GitHub generates records from the assets of a project's releases.
type GitHub struct {
	def     Definition
	fetcher Fetcher
	fileRE  *regexp.Regexp
	logger  *zap.Logger
}

// NewGitHub builds a releases API generator from def.
func NewGitHub(def Definition, f Fetcher, logger *zap.Logger) (*GitHub, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fileRE, err := regexp.Compile(def.FilePattern)
	if err != nil {
		return nil, fmt.Errorf("compile file pattern: %w", err)
	}
	return &GitHub{
		def:     def,
		fetcher: f,
		fileRE:  fileRE,
		logger:  logger.Named("github").With(zap.String("source", def.Name)),
	}, nil
}

// Info implements Generator.
func (g *GitHub) Info() catalog.SourceInfo {
	return g.def.Info()
}

// Generate implements Generator.
func (g *GitHub) Generate(ctx context.Context) ([]catalog.CandidateRecord, error) {
	releases, err := FetchGitHubReleases(ctx, g.fetcher, g.def.URL)
	if err != nil {
		return nil, err
	}

	var kept []GitHubRelease
	for _, rel := range releases {
		if rel.Prerelease && !g.def.IncludePrereleases {
			continue
		}
		kept = append(kept, rel)
		if g.def.Limit > 0 && len(kept) == g.def.Limit {
			break
		}
	}

	opts := []fanout.Option{fanout.WithLimit(g.def.Concurrency), fanout.WithLogger(g.logger)}
	units := fanout.Units(kept, func(ctx context.Context, rel GitHubRelease) []catalog.CandidateRecord {
		assets := make(map[string]GitHubAsset, len(rel.Assets))
		for _, a := range rel.Assets {
			assets[a.Name] = a
		}
		perAsset := fanout.Units(rel.Assets, func(ctx context.Context, a GitHubAsset) fanout.Maybe[catalog.CandidateRecord] {
			return g.assetRecord(ctx, rel, a, assets)
		})
		return fanout.JoinSome(ctx, perAsset, opts...)
	})
	return fanout.JoinFlat(ctx, units, opts...), nil
}

func (g *GitHub) assetRecord(ctx context.Context, rel GitHubRelease, a GitHubAsset, assets map[string]GitHubAsset) fanout.Maybe[catalog.CandidateRecord] {
	m := g.fileRE.FindStringSubmatch(a.Name)
	if m == nil {
		return fanout.None[catalog.CandidateRecord]()
	}

	arch := g.def.arches()[0]
	if raw := namedGroup(g.fileRE, m, "arch"); raw != "" {
		parsed, ok := catalog.ParseArch(raw)
		if !ok {
			g.logger.Debug("Skipping asset with unknown arch", zap.String("asset", a.Name), zap.String("arch", raw))
			return fanout.None[catalog.CandidateRecord]()
		}
		arch = parsed
	}

	var checksum string
	if g.def.ChecksumSuffix != "" {
		if sumAsset, ok := assets[a.Name+g.def.ChecksumSuffix]; ok {
			if sums, ok := FetchChecksums(ctx, g.fetcher, sumAsset.BrowserDownloadURL, ChecksumWhitespace); ok {
				checksum = sums[a.Name]
				if checksum == "" && len(sums) == 1 {
					for _, v := range sums {
						checksum = v
					}
				}
			}
		}
	}

	rec := catalog.CandidateRecord{
		Release: strings.TrimPrefix(rel.TagName, "v"),
		Edition: namedGroup(g.fileRE, m, "edition"),
		Arch:    arch,
	}
	src := catalog.WebSource(a.BrowserDownloadURL, checksum, catalog.ArchiveFormatFromName(a.Name))
	src.FileName = a.Name
	g.def.place(&rec, src)
	return fanout.Some(rec)
}
