package taxonomy

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ozkatz/cloudzip/pkg/remote"
	"github.com/ozkatz/cloudzip/pkg/zipfile"
)

// ArchiveSource locates a taxonomy JSON document inside a remote taxonomy
// package zip. Only the central directory and the requested member are
// fetched, using ranged requests.
type ArchiveSource struct {
	URL      string
	Member   string
	CacheDir string
}

// Fetch returns the member's bytes, reading them from the cache directory
// when a previous fetch of the same URL and member stored them there.
func (s ArchiveSource) Fetch(ctx context.Context) ([]byte, error) {
	if s.URL == "" || s.Member == "" {
		return nil, fmt.Errorf("archive url and member are required")
	}
	cacheFile, err := s.cacheFile()
	if err != nil {
		return nil, err
	}
	if data, err := os.ReadFile(cacheFile); err == nil {
		return data, nil
	}

	data, err := FetchArchiveMember(ctx, s.URL, s.Member)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(cacheFile, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write cache file: %w", err)
	}
	return data, nil
}

// Load fetches and normalizes the member.
func (s ArchiveSource) Load(ctx context.Context) (*Data, error) {
	data, err := s.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	tax, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if tax.SourceFile == "" {
		tax.SourceFile = s.Member
	}
	return tax, nil
}

func (s ArchiveSource) cacheFile() (string, error) {
	dir := s.CacheDir
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".cache", "esrs-ixbrl")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	sum := sha256.Sum256([]byte(s.URL))
	name := hex.EncodeToString(sum[:6]) + "_" + strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(s.Member)
	return filepath.Join(dir, name), nil
}

// FetchArchiveMember reads a single file out of the zip at zipURL.
func FetchArchiveMember(ctx context.Context, zipURL, member string) ([]byte, error) {
	fetcher, err := remote.NewHttpFetcher(zipURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP fetcher: %w", err)
	}
	adapter := zipfile.NewStorageAdapter(ctx, fetcher)
	parser := zipfile.NewCentralDirectoryParser(adapter)
	reader, err := parser.Read(member)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s from ZIP: %w", member, err)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read file contents: %w", err)
	}
	return data, nil
}
