/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic into a report file and an emergency copy of the open annotations.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	applog "annotate/internal/log"
	"annotate/internal/storage"
	"annotate/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Target names what a crash should rescue. Both fields are optional.
type Target struct {
	// Path of the annotation document being worked on; reports go to its backups dir.
	Path string
	// Snapshot returns the current in-memory annotations.
	Snapshot func() (*storage.Document, error)
}

// Recover captures a panic, logs an error with stacktrace, writes an error report file
// and attempts an emergency save of the current annotations.
//
// Usage: defer crash.Recover(target)
func Recover(t *Target) {
	if r := recover(); r != nil {
		l := applog.WithComponent("crash")
		stack := debug.Stack()
		l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

		reportPath, err := writeReport(t, r, stack)
		if err != nil {
			l.Error("crash report failed", slog.Any("err", err))
		}
		if path, err := emergencySave(t); err != nil {
			l.Error("emergency save failed", slog.Any("err", err))
		} else if path != "" {
			l.Info("emergency save written", slog.String("path", path))
		}

		if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
			l.Error("failed to write crash message to stderr", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
			l.Error("failed to write version info to stderr", slog.Any("err", err))
		}
		exitFn(2)
	}
}

func reportDir(t *Target) string {
	if t == nil || t.Path == "" {
		return os.TempDir()
	}
	dir := storage.BackupsDir(filepath.Dir(t.Path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return os.TempDir()
	}
	return dir
}

func writeReport(t *Target, panicVal any, stack []byte) (string, error) {
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(reportDir(t), fmt.Sprintf("crash-%s.log", stamp))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Annotate Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if t != nil && t.Path != "" {
		_, _ = fmt.Fprintf(&buf, "Document: %s\n", t.Path)
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, err
	}
	_ = f.Sync()
	return path, nil
}

// emergencySave writes "<base>.crash-<stamp>.json" next to the crash report.
// It returns "" when there is nothing to save.
func emergencySave(t *Target) (string, error) {
	if t == nil || t.Snapshot == nil {
		return "", nil
	}
	doc, err := t.Snapshot()
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	base := "annotations"
	if t.Path != "" {
		base = strings.TrimSuffix(filepath.Base(t.Path), filepath.Ext(t.Path))
	}
	path := filepath.Join(reportDir(t), fmt.Sprintf("%s.crash-%s.json", base, time.Now().Format("20060102-150405")))
	if err := storage.SaveFile(path, doc); err != nil {
		return "", err
	}
	return path, nil
}
