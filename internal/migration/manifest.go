package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

// manifest describes the embedded up migrations.
type manifest struct {
	Latest   uint
	Checksum string
	Files    []string
}

func loadManifest(fsys fs.FS, dir string) (manifest, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return manifest{}, fmt.Errorf("list migrations: %w", err)
	}

	var m manifest
	for _, entry := range entries {
		name := strings.TrimSpace(entry.Name())
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		version, ok := parseMigrationVersion(name)
		if !ok {
			return manifest{}, fmt.Errorf("invalid migration filename: %s", name)
		}
		if version > m.Latest {
			m.Latest = version
		}
		m.Files = append(m.Files, name)
	}
	if m.Latest == 0 {
		return manifest{}, errors.New("no embedded migrations found")
	}
	sort.Strings(m.Files)

	hasher := sha256.New()
	for _, name := range m.Files {
		content, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return manifest{}, fmt.Errorf("read migration %s: %w", name, err)
		}
		_, _ = hasher.Write([]byte(name))
		_, _ = hasher.Write([]byte{0})
		_, _ = hasher.Write(content)
		_, _ = hasher.Write([]byte{0})
	}
	m.Checksum = hex.EncodeToString(hasher.Sum(nil))
	return m, nil
}

func parseMigrationVersion(name string) (uint, bool) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok || prefix == "" {
		return 0, false
	}
	parsed, err := strconv.ParseUint(prefix, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(parsed), true
}
