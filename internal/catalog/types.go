// Package catalog defines the installation-media catalog model shared by
// source generators, the link validator, and catalog assembly.
package catalog

import (
	"strings"
)

// Arch identifies a guest CPU architecture.
type Arch string

// Supported architectures.
const (
	ArchX86_64  Arch = "x86_64"
	ArchAarch64 Arch = "aarch64"
	ArchRiscv64 Arch = "riscv64"
)

// ParseArch maps the spellings used by mirrors onto an Arch.
func ParseArch(raw string) (Arch, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "x86_64", "amd64":
		return ArchX86_64, true
	case "aarch64", "arm64":
		return ArchAarch64, true
	case "riscv64", "riscv":
		return ArchRiscv64, true
	default:
		return "", false
	}
}

// ArchiveFormat describes how a downloadable resource is packed.
type ArchiveFormat string

// Archive formats understood by downstream consumers.
const (
	ArchiveNone  ArchiveFormat = ""
	ArchiveTar   ArchiveFormat = "tar"
	ArchiveTarGz ArchiveFormat = "tar.gz"
	ArchiveTarXz ArchiveFormat = "tar.xz"
	ArchiveTarBz ArchiveFormat = "tar.bz2"
	ArchiveGz    ArchiveFormat = "gz"
	ArchiveXz    ArchiveFormat = "xz"
	ArchiveBz2   ArchiveFormat = "bz2"
	ArchiveZst   ArchiveFormat = "zst"
	ArchiveZip   ArchiveFormat = "zip"
	Archive7z    ArchiveFormat = "7z"
)

// longest suffixes first so ".tar.xz" wins over ".xz".
var archiveSuffixes = []struct {
	suffix string
	format ArchiveFormat
}{
	{".tar.gz", ArchiveTarGz},
	{".tgz", ArchiveTarGz},
	{".tar.xz", ArchiveTarXz},
	{".tar.bz2", ArchiveTarBz},
	{".tar", ArchiveTar},
	{".gz", ArchiveGz},
	{".xz", ArchiveXz},
	{".bz2", ArchiveBz2},
	{".zst", ArchiveZst},
	{".zip", ArchiveZip},
	{".7z", Archive7z},
}

// ArchiveFormatFromName infers the archive format from a file name or URL.
func ArchiveFormatFromName(name string) ArchiveFormat {
	lower := strings.ToLower(name)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, s := range archiveSuffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.format
		}
	}
	return ArchiveNone
}

// SourceKind distinguishes network resources from references that are
// resolved by other tooling (container registries).
type SourceKind string

// Source kinds.
const (
	SourceWeb    SourceKind = "web"
	SourceDocker SourceKind = "docker"
)

// Source is a single resource reference inside a candidate record.
type Source struct {
	Kind     SourceKind    `json:"kind" validate:"required,oneof=web docker"`
	URL      string        `json:"url" validate:"required"`
	Checksum string        `json:"checksum,omitempty"`
	Archive  ArchiveFormat `json:"archive_format,omitempty"`
	FileName string        `json:"file_name,omitempty"`
}

// WebSource builds a network Source.
func WebSource(url, checksum string, archive ArchiveFormat) Source {
	return Source{
		Kind:     SourceWeb,
		URL:      url,
		Checksum: checksum,
		Archive:  archive,
	}
}

// DockerSource builds a container image reference. It is never probed.
func DockerSource(ref string) Source {
	return Source{Kind: SourceDocker, URL: ref}
}

// IsNetwork reports whether the source must pass liveness validation.
func (s Source) IsNetwork() bool {
	return s.Kind == SourceWeb
}

// Disk is a prebuilt disk image.
type Disk struct {
	Source Source `json:"source"`
	Size   uint64 `json:"size,omitempty"`
	Format string `json:"format,omitempty"`
}

// CandidateRecord is one downloadable release variant produced by a source
// generator. Records are treated as immutable once generated.
type CandidateRecord struct {
	Release    string   `json:"release" validate:"required"`
	Edition    string   `json:"edition,omitempty"`
	Arch       Arch     `json:"arch" validate:"required,oneof=x86_64 aarch64 riscv64"`
	ISO        []Source `json:"iso,omitempty" validate:"dive"`
	IMG        []Source `json:"img,omitempty" validate:"dive"`
	FixedISO   []Source `json:"fixed_iso,omitempty" validate:"dive"`
	Floppy     []Source `json:"floppy,omitempty" validate:"dive"`
	DiskImages []Disk   `json:"disk_images,omitempty" validate:"dive"`
}

// NetworkURLs returns every URL that needs a liveness check, in record order:
// iso, img, fixed iso, floppy, then disk images.
func (r CandidateRecord) NetworkURLs() []string {
	var urls []string
	for _, group := range [][]Source{r.ISO, r.IMG, r.FixedISO, r.Floppy} {
		for _, s := range group {
			if s.IsNetwork() {
				urls = append(urls, s.URL)
			}
		}
	}
	for _, d := range r.DiskImages {
		if d.Source.IsNetwork() {
			urls = append(urls, d.Source.URL)
		}
	}
	return urls
}

// ResourceCount returns the number of resource references of any kind.
func (r CandidateRecord) ResourceCount() int {
	return len(r.ISO) + len(r.IMG) + len(r.FixedISO) + len(r.Floppy) + len(r.DiskImages)
}

// Label renders the record identity for logs.
func (r CandidateRecord) Label() string {
	parts := []string{r.Release}
	if r.Edition != "" {
		parts = append(parts, r.Edition)
	}
	parts = append(parts, string(r.Arch))
	return strings.Join(parts, " ")
}

// SourceInfo describes an upstream source.
type SourceInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"pretty_name"`
	Homepage    string `json:"homepage,omitempty"`
	Description string `json:"description,omitempty"`
}

// Entry is the published catalog entry for one source. An Entry always holds
// at least one release.
type Entry struct {
	SourceInfo
	Releases []CandidateRecord `json:"releases"`
}
