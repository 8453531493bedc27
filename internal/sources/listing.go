package sources

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"slices"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/isocatalog/internal/catalog"
	"github.com/JakeFAU/isocatalog/internal/fanout"
)

// Listing generates records by walking a mirror's directory listings:
// index page, then one directory per release, then matching files.
type Listing struct {
	def       Definition
	fetcher   Fetcher
	releaseRE *regexp.Regexp
	fileRE    *regexp.Regexp
	checksums ChecksumFormat
	logger    *zap.Logger
}

// NewListing builds a listing generator from def.
func NewListing(def Definition, f Fetcher, logger *zap.Logger) (*Listing, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	releaseRE, err := regexp.Compile(def.ReleasePattern)
	if err != nil {
		return nil, fmt.Errorf("compile release pattern: %w", err)
	}
	fileRE, err := regexp.Compile(def.FilePattern)
	if err != nil {
		return nil, fmt.Errorf("compile file pattern: %w", err)
	}
	format, err := ParseChecksumFormat(def.ChecksumFormat)
	if err != nil {
		return nil, err
	}
	return &Listing{
		def:       def,
		fetcher:   f,
		releaseRE: releaseRE,
		fileRE:    fileRE,
		checksums: format,
		logger:    logger.Named("listing").With(zap.String("source", def.Name)),
	}, nil
}

// Info implements Generator.
func (l *Listing) Info() catalog.SourceInfo {
	return l.def.Info()
}

type releaseDir struct {
	release string
	url     string
}

// Generate implements Generator. It fails only when no index page could be read.
func (l *Listing) Generate(ctx context.Context) ([]catalog.CandidateRecord, error) {
	arches := l.def.arches()
	opts := []fanout.Option{fanout.WithLimit(l.def.Concurrency), fanout.WithLogger(l.logger)}

	var unreadable atomic.Int32
	units := fanout.Units(arches, func(ctx context.Context, arch catalog.Arch) [][]catalog.CandidateRecord {
		index := l.indexURL(arch)
		page, ok := l.fetcher.FetchText(ctx, index)
		if !ok {
			unreadable.Add(1)
			l.logger.Warn("Failed to fetch release index", zap.String("arch", string(arch)), zap.String("url", index))
			return nil
		}
		dirs := fanout.Units(l.releaseDirs(index, page), func(ctx context.Context, dir releaseDir) []catalog.CandidateRecord {
			return l.releaseRecords(ctx, arch, dir)
		})
		return fanout.Join(ctx, dirs, opts...)
	})

	recs := fanout.JoinFlat2(ctx, units, opts...)
	if len(recs) == 0 && int(unreadable.Load()) == len(arches) {
		return nil, fmt.Errorf("list %s: %w", l.def.Name, ErrUnavailable)
	}
	return recs, nil
}

func (l *Listing) indexURL(arch catalog.Arch) string {
	return strings.ReplaceAll(l.def.URL, "{arch}", l.archToken(arch))
}

// archToken is the mirror's spelling of arch.
func (l *Listing) archToken(arch catalog.Arch) string {
	if alias, ok := l.def.ArchAliases[string(arch)]; ok {
		return alias
	}
	return string(arch)
}

// releaseDirs returns the newest-first, de-duplicated release directories on
// an index page, trimmed to the configured limit.
func (l *Listing) releaseDirs(index, page string) []releaseDir {
	seen := make(map[string]struct{})
	var dirs []releaseDir
	for _, m := range MatchLinks(page, l.releaseRE) {
		release := namedGroup(l.releaseRE, m.Groups, "release")
		if release == "" && len(m.Groups) > 1 {
			release = m.Groups[1]
		}
		if release == "" {
			continue
		}
		if _, dup := seen[release]; dup {
			continue
		}
		dirURL, ok := Resolve(index, m.Href)
		if !ok {
			continue
		}
		if !strings.HasSuffix(dirURL, "/") {
			dirURL += "/"
		}
		seen[release] = struct{}{}
		dirs = append(dirs, releaseDir{release: release, url: dirURL})
	}
	slices.SortStableFunc(dirs, func(a, b releaseDir) int {
		return catalog.CompareVersionsDesc(a.release, b.release)
	})
	if l.def.Limit > 0 && len(dirs) > l.def.Limit {
		dirs = dirs[:l.def.Limit]
	}
	return dirs
}

func (l *Listing) releaseRecords(ctx context.Context, arch catalog.Arch, dir releaseDir) []catalog.CandidateRecord {
	page, ok := l.fetcher.FetchText(ctx, dir.url)
	if !ok {
		l.logger.Warn("Failed to fetch release directory", zap.String("release", dir.release), zap.String("url", dir.url))
		return nil
	}

	var sums map[string]string
	if l.def.ChecksumFile != "" {
		name := strings.NewReplacer("{release}", dir.release, "{arch}", l.archToken(arch)).Replace(l.def.ChecksumFile)
		if sumURL, ok := Resolve(dir.url, name); ok {
			sums, _ = FetchChecksums(ctx, l.fetcher, sumURL, l.checksums)
		}
	}

	seen := make(map[string]struct{})
	var recs []catalog.CandidateRecord
	for _, m := range MatchLinks(page, l.fileRE) {
		if a := namedGroup(l.fileRE, m.Groups, "arch"); a != "" {
			if parsed, ok := catalog.ParseArch(a); !ok || parsed != arch {
				continue
			}
		}
		fileURL, ok := Resolve(dir.url, m.Href)
		if !ok {
			continue
		}
		if _, dup := seen[fileURL]; dup {
			continue
		}
		seen[fileURL] = struct{}{}

		name := fileName(fileURL)
		src := catalog.WebSource(fileURL, sums[name], catalog.ArchiveFormatFromName(name))
		rec := catalog.CandidateRecord{
			Release: dir.release,
			Edition: namedGroup(l.fileRE, m.Groups, "edition"),
			Arch:    arch,
		}
		l.def.place(&rec, src)
		recs = append(recs, rec)
	}
	return recs
}

func fileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return path.Base(rawURL)
	}
	return path.Base(u.Path)
}
