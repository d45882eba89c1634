/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package crash

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeAutosave struct {
	dir   string
	calls int
	err   error
}

func (f *fakeAutosave) Autosave() (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	p := filepath.Join(f.dir, "autosave.json")
	return p, os.WriteFile(p, []byte("{}"), 0o644)
}

func silenceStderr(t *testing.T) {
	t.Helper()
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	t.Cleanup(func() {
		_ = w.Close()
		os.Stderr = old
		_, _ = io.Copy(io.Discard, r)
	})
}

func stubExit(t *testing.T) *int {
	t.Helper()
	code := -1
	old := exitFn
	exitFn = func(c int) { code = c }
	t.Cleanup(func() { exitFn = old })
	return &code
}

func findReport(t *testing.T, dir string) string {
	t.Helper()
	files, _ := os.ReadDir(dir)
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "crash-") && strings.HasSuffix(f.Name(), ".log") {
			return filepath.Join(dir, f.Name())
		}
	}
	t.Fatalf("no crash report in %s", dir)
	return ""
}

func TestWriteReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	path, err := writeReport(dir, "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("report outside dir: %s", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "CaseForge Crash Report") || !strings.Contains(s, "Panic: boom") || !strings.Contains(s, "stacktrace") {
		t.Fatalf("unexpected report: %s", s)
	}
}

func TestRecoverWritesReportAndAutosaves(t *testing.T) {
	silenceStderr(t)
	code := stubExit(t)
	dir := t.TempDir()
	as := &fakeAutosave{dir: dir}

	func() {
		defer Recover(Options{Dir: dir, Autosave: as})
		panic("boom")
	}()

	if *code != 2 {
		t.Fatalf("expected exit code 2, got %d", *code)
	}
	if as.calls != 1 {
		t.Fatalf("autosave calls = %d", as.calls)
	}
	b, _ := os.ReadFile(findReport(t, dir))
	if !strings.Contains(string(b), "Panic: boom") {
		t.Fatalf("report does not contain panic: %s", b)
	}
	if _, err := os.Stat(filepath.Join(dir, "autosave.json")); err != nil {
		t.Fatalf("autosave missing: %v", err)
	}
}

func TestRecoverAutosaveFailureStillExits(t *testing.T) {
	silenceStderr(t)
	code := stubExit(t)
	dir := t.TempDir()
	as := &fakeAutosave{err: errors.New("disk full")}

	func() {
		defer Recover(Options{Dir: dir, Autosave: as})
		panic("kaboom")
	}()
	if *code != 2 || as.calls != 1 {
		t.Fatalf("code=%d calls=%d", *code, as.calls)
	}
	findReport(t, dir)
}

func TestRecoverWithoutPanicIsNoop(t *testing.T) {
	code := stubExit(t)
	func() {
		defer Recover(Options{Dir: t.TempDir()})
	}()
	if *code != -1 {
		t.Fatalf("exit called without panic")
	}
}
