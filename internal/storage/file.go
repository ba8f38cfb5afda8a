/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	applog "annotate/internal/log"
)

const (
	// DataDirName holds backups and the journal next to the annotated documents.
	DataDirName    = ".annotate"
	BackupsDirName = "backups"
)

// BackupsDir returns the backup directory used for documents in dir.
func BackupsDir(dir string) string { return filepath.Join(dir, DataDirName, BackupsDirName) }

// SaveFile writes doc to path with transactional semantics: the data goes to a temp file in
// the same directory which is then renamed over the target. An existing file is first copied
// to a timestamped backup.
func SaveFile(path string, doc *Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	if strings.TrimSpace(path) == "" {
		return errors.New("path is required")
	}
	data, err := doc.Marshal()
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	// If a current file exists, copy it to a timestamped backup before replacing
	if _, statErr := os.Stat(path); statErr == nil {
		bdir := BackupsDir(dir)
		stamp := time.Now().Format("20060102-150405.000")
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(path), stamp))
		if cerr := copyFile(path, bpath); cerr != nil {
			return fmt.Errorf("backup current file: %w", cerr)
		}
	}

	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(path), os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return fmt.Errorf("write temp file: %w", werr)
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
	if rerr := os.Rename(temp, path); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace file: %w", rerr)
	}
	return nil
}

// OpenFile reads and decodes the document at path. When the file is missing or malformed
// the latest backup is tried; the original error is returned if that fails too.
func OpenFile(path string) (*Document, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "open").With(slog.String("path", path))
	b, err := os.ReadFile(path)
	if err == nil {
		doc, derr := Decode(b)
		if derr == nil {
			return doc, nil
		}
		err = derr
	}
	doc, berr := openFromLatestBackup(path)
	if berr != nil {
		return nil, fmt.Errorf("open %s: %w; backup attempt: %v", path, err, berr)
	}
	l.Warn("document unreadable, restored from backup", slog.Any("err", err))
	return doc, nil
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}

// Backups lists the backups of path, oldest first.
func Backups(path string) ([]string, error) {
	bdir := BackupsDir(filepath.Dir(path))
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	prefix := filepath.Base(path) + "."
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	sort.Strings(out) // timestamp in name yields lexicographic order
	return out, nil
}

func openFromLatestBackup(path string) (*Document, error) {
	candidates, err := Backups(path)
	if err != nil {
		return nil, err
	}
	// newest first; skip backups that are themselves broken
	for i := len(candidates) - 1; i >= 0; i-- {
		b, err := os.ReadFile(candidates[i])
		if err != nil {
			continue
		}
		if doc, err := Decode(b); err == nil {
			return doc, nil
		}
	}
	return nil, errors.New("no usable backups found")
}
