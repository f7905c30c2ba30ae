package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/math15/visagate/internal/model"
)

var (
	// ErrNotFound is returned when no artifact exists for the requested
	// class or correlation key.
	ErrNotFound = errors.New("artifact not found")

	// ErrStorageUnavailable is returned when the cache directory cannot be
	// read or written. Callers treat this as a distinct failure class from
	// a missing artifact.
	ErrStorageUnavailable = errors.New("artifact storage unavailable")
)

// Cache is a file-backed artifact store rooted at a single directory.
// All methods are safe for concurrent use: writes go to unique timestamped
// files, and pointer updates are atomic renames.
type Cache struct {
	dir string
}

// New opens (creating if needed) an artifact cache rooted at dir.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache root directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Store persists an artifact. A zero CreatedAt is stamped with the current
// time, and an empty ID is derived from the creation timestamp. The stored
// artifact becomes the latest for its class, and for its correlation key if
// one is set, before Store returns: a Latest call after a successful Store
// observes it.
func (c *Cache) Store(artifact *model.CachedArtifact) error {
	if artifact.Class == "" {
		return fmt.Errorf("artifact class must not be empty")
	}
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}
	if artifact.ID == "" {
		artifact.ID = strconv.FormatInt(artifact.CreatedAt.UnixNano(), 10)
	}
	// File names are <class>_<id>.json, so a free-form ID would make class
	// matching ambiguous for classes that are prefixes of each other.
	if !isDecimalID(artifact.ID) {
		return fmt.Errorf("artifact ID must be a decimal timestamp, got %q", artifact.ID)
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	name := fmt.Sprintf("%s_%s.json", artifact.Class, artifact.ID)
	if err := c.writeAtomic(name, data); err != nil {
		return err
	}

	if err := c.writeAtomic(latestName(artifact.Class, ""), data); err != nil {
		return err
	}
	if artifact.CorrelationKey != "" {
		if err := c.writeAtomic(latestName(artifact.Class, artifact.CorrelationKey), data); err != nil {
			return err
		}
	}

	return nil
}

// Latest returns the most recently stored artifact of the given class,
// regardless of age. Callers decide freshness with IsValid. Returns
// ErrNotFound when nothing of that class has ever been stored.
func (c *Cache) Latest(class string) (*model.CachedArtifact, error) {
	return c.read(latestName(class, ""))
}

// LatestFor returns the most recent artifact of the given class stored under
// a correlation key.
func (c *Cache) LatestFor(class, key string) (*model.CachedArtifact, error) {
	if key == "" {
		return c.Latest(class)
	}
	return c.read(latestName(class, key))
}

// Get retrieves a historical artifact by class and ID.
func (c *Cache) Get(class, id string) (*model.CachedArtifact, error) {
	return c.read(fmt.Sprintf("%s_%s.json", class, id))
}

// List returns all stored artifacts of a class, newest first.
func (c *Cache) List(class string) ([]*model.CachedArtifact, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	var artifacts []*model.CachedArtifact
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isClassArtifact(name, class) {
			continue
		}
		artifact, err := c.read(name)
		if err != nil {
			// A sweep may remove files between ReadDir and read.
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
	})
	return artifacts, nil
}

// SweepResult summarizes a retention sweep.
type SweepResult struct {
	// Removed is the number of artifact files deleted.
	Removed int

	// Kept is the number of artifact files within the retention window.
	Kept int
}

// Sweep deletes timestamped artifact files older than retention. Latest
// pointer files are left in place so the most recent artifact of each class
// stays retrievable even past retention; staleness is the caller's check.
func (c *Cache) Sweep(retention time.Duration) (*SweepResult, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	cutoff := time.Now().UTC().Add(-retention)
	result := &SweepResult{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isTimestampedArtifact(name) {
			continue
		}

		artifact, err := c.read(name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return result, err
		}
		if artifact.CreatedAt.Before(cutoff) {
			if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !os.IsNotExist(err) {
				return result, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
			}
			result.Removed++
		} else {
			result.Kept++
		}
	}

	return result, nil
}

// read loads and decodes one artifact file.
func (c *Cache) read(name string) (*model.CachedArtifact, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	var artifact model.CachedArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to decode artifact %s: %w", name, err)
	}
	return &artifact, nil
}

// writeAtomic writes data to name via a temp file and rename, so readers
// never observe a partial artifact.
func (c *Cache) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(c.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmpName, filepath.Join(c.dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// isClassArtifact reports whether name is a timestamped artifact file of
// exactly the given class. Requiring the remainder after the class prefix to
// be the decimal nanosecond ID keeps classes that are prefixes of each other
// (e.g. "otp" and "otp_backup") from matching each other's files.
func isClassArtifact(name, class string) bool {
	if strings.HasPrefix(name, "latest_") {
		return false
	}
	rest, ok := strings.CutPrefix(name, class+"_")
	if !ok {
		return false
	}
	id, ok := strings.CutSuffix(rest, ".json")
	if !ok {
		return false
	}
	return isDecimalID(id)
}

// isTimestampedArtifact reports whether name looks like <class>_<unixnano>.json.
// Pointer files and foreign files in the cache directory never qualify, so a
// sweep cannot delete them.
func isTimestampedArtifact(name string) bool {
	if strings.HasPrefix(name, "latest_") {
		return false
	}
	base, ok := strings.CutSuffix(name, ".json")
	if !ok {
		return false
	}
	i := strings.LastIndexByte(base, '_')
	if i < 0 {
		return false
	}
	return isDecimalID(base[i+1:])
}

func isDecimalID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// latestName builds the pointer file name for a class, optionally scoped to
// a correlation key. Keys are sanitized so they cannot escape the cache
// directory.
func latestName(class, key string) string {
	if key == "" {
		return fmt.Sprintf("latest_%s.json", class)
	}
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, key)
	return fmt.Sprintf("latest_%s_%s.json", class, safe)
}
