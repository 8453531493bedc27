package sources

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// ChecksumFormat describes the layout of a checksum file.
type ChecksumFormat struct {
	name  string
	re    *regexp.Regexp
	key   int
	value int
}

// Built-in checksum formats.
var (
	// ChecksumWhitespace parses "<hash> <file>" lines as written by sha256sum.
	ChecksumWhitespace = ChecksumFormat{name: "whitespace"}
	// ChecksumSHA256 parses BSD style "SHA256 (file) = hash" lines.
	ChecksumSHA256 = ChecksumFormat{name: "sha256", re: regexp.MustCompile(`SHA256 \(([^)]+)\) = ([0-9a-f]+)`), key: 1, value: 2}
	// ChecksumMD5 parses BSD style "MD5 (file) = hash" lines.
	ChecksumMD5 = ChecksumFormat{name: "md5", re: regexp.MustCompile(`MD5 \(([^)]+)\) = ([0-9a-f]+)`), key: 1, value: 2}
)

// CustomChecksumFormat matches re against the whole file; keyIndex and
// valueIndex select the file name and hash submatches.
func CustomChecksumFormat(re *regexp.Regexp, keyIndex, valueIndex int) ChecksumFormat {
	return ChecksumFormat{name: "custom", re: re, key: keyIndex, value: valueIndex}
}

// ParseChecksumFormat resolves a built-in format by name. Empty means whitespace.
func ParseChecksumFormat(name string) (ChecksumFormat, error) {
	switch strings.ToLower(name) {
	case "", "whitespace":
		return ChecksumWhitespace, nil
	case "sha256":
		return ChecksumSHA256, nil
	case "md5":
		return ChecksumMD5, nil
	default:
		return ChecksumFormat{}, fmt.Errorf("unknown checksum format %q", name)
	}
}

// String returns the format name.
func (f ChecksumFormat) String() string {
	return f.name
}

// ParseChecksums maps file names to hashes.
func ParseChecksums(data string, format ChecksumFormat) map[string]string {
	out := make(map[string]string)
	if format.re == nil {
		for _, line := range strings.Split(data, "\n") {
			hash, file, ok := strings.Cut(strings.TrimSpace(line), " ")
			if !ok {
				continue
			}
			// sha256sum marks binary mode with a leading '*'.
			file = strings.TrimPrefix(strings.TrimSpace(file), "*")
			out[file] = strings.TrimSpace(hash)
		}
		return out
	}
	for _, m := range format.re.FindAllStringSubmatch(data, -1) {
		if format.key >= len(m) || format.value >= len(m) {
			continue
		}
		out[m[format.key]] = m[format.value]
	}
	return out
}

// FetchChecksums downloads and parses a checksum file.
func FetchChecksums(ctx context.Context, f Fetcher, rawURL string, format ChecksumFormat) (map[string]string, bool) {
	data, ok := f.FetchText(ctx, rawURL)
	if !ok {
		return nil, false
	}
	return ParseChecksums(data, format), true
}
