package sources

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/JakeFAU/isocatalog/internal/catalog"
)

// Generic generator kinds.
const (
	KindListing = "listing"
	KindGitHub  = "github"
)

// Resource lists a generator can place files into.
const (
	ResourceISO  = "iso"
	ResourceIMG  = "img"
	ResourceDisk = "disk"
)

// Definition configures one generic generator.
type Definition struct {
	Kind        string `mapstructure:"kind"`
	Name        string `mapstructure:"name"`
	DisplayName string `mapstructure:"pretty_name"`
	Homepage    string `mapstructure:"homepage"`
	Description string `mapstructure:"description"`

	// URL is the mirror index (listing) or releases API endpoint (github).
	// Listing URLs may contain an {arch} placeholder.
	URL string `mapstructure:"url"`
	// Resource selects where matched files go: iso, img or disk.
	Resource    string            `mapstructure:"resource"`
	Arches      []string          `mapstructure:"arches"`
	ArchAliases map[string]string `mapstructure:"arch_aliases"`

	ReleasePattern string `mapstructure:"release_pattern"`
	FilePattern    string `mapstructure:"file_pattern"`
	ChecksumFile   string `mapstructure:"checksum_file"`
	ChecksumFormat string `mapstructure:"checksum_format"`

	ChecksumSuffix     string `mapstructure:"checksum_suffix"`
	IncludePrereleases bool   `mapstructure:"include_prereleases"`

	// Limit keeps only the newest releases; zero keeps all.
	Limit int `mapstructure:"limit"`
	// Concurrency caps sub-fetch fan-out for this source; zero is unbounded.
	Concurrency int `mapstructure:"concurrency"`
}

// Info returns the catalog description of the source.
func (d Definition) Info() catalog.SourceInfo {
	display := d.DisplayName
	if display == "" {
		display = d.Name
	}
	return catalog.SourceInfo{
		Name:        d.Name,
		DisplayName: display,
		Homepage:    d.Homepage,
		Description: d.Description,
	}
}

// Validate checks the definition without touching the network.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("source definition: name is required")
	}
	if d.URL == "" {
		return fmt.Errorf("source %q: url is required", d.Name)
	}
	switch d.Resource {
	case "", ResourceISO, ResourceIMG, ResourceDisk:
	default:
		return fmt.Errorf("source %q: unknown resource %q", d.Name, d.Resource)
	}
	for _, a := range d.Arches {
		if _, ok := catalog.ParseArch(a); !ok {
			return fmt.Errorf("source %q: unknown arch %q", d.Name, a)
		}
	}
	if d.FilePattern == "" {
		return fmt.Errorf("source %q: file_pattern is required", d.Name)
	}
	if _, err := regexp.Compile(d.FilePattern); err != nil {
		return fmt.Errorf("source %q: file_pattern: %w", d.Name, err)
	}
	switch d.Kind {
	case KindListing:
		if d.ReleasePattern == "" {
			return fmt.Errorf("source %q: release_pattern is required", d.Name)
		}
		if _, err := regexp.Compile(d.ReleasePattern); err != nil {
			return fmt.Errorf("source %q: release_pattern: %w", d.Name, err)
		}
		if _, err := ParseChecksumFormat(d.ChecksumFormat); err != nil {
			return fmt.Errorf("source %q: %w", d.Name, err)
		}
	case KindGitHub:
	default:
		return fmt.Errorf("source %q: unknown kind %q", d.Name, d.Kind)
	}
	return nil
}

func (d Definition) arches() []catalog.Arch {
	if len(d.Arches) == 0 {
		return []catalog.Arch{catalog.ArchX86_64}
	}
	out := make([]catalog.Arch, 0, len(d.Arches))
	for _, a := range d.Arches {
		if arch, ok := catalog.ParseArch(a); ok {
			out = append(out, arch)
		}
	}
	return out
}

// place appends src to the resource list the definition targets.
func (d Definition) place(rec *catalog.CandidateRecord, src catalog.Source) {
	switch d.Resource {
	case ResourceIMG:
		rec.IMG = append(rec.IMG, src)
	case ResourceDisk:
		rec.DiskImages = append(rec.DiskImages, catalog.Disk{Source: src})
	default:
		rec.ISO = append(rec.ISO, src)
	}
}

// Build turns definitions into a registry of generic generators.
func Build(defs []Definition, f Fetcher, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := NewRegistry()
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		var (
			gen Generator
			err error
		)
		switch def.Kind {
		case KindListing:
			gen, err = NewListing(def, f, logger)
		case KindGitHub:
			gen, err = NewGitHub(def, f, logger)
		}
		if err != nil {
			return nil, fmt.Errorf("build source %q: %w", def.Name, err)
		}
		if err := reg.Register(gen); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
