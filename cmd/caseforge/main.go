/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"caseforge/internal/config"
	"caseforge/internal/crash"
	"caseforge/internal/editor"
	applog "caseforge/internal/log"
	"caseforge/internal/version"
)

// errUsage makes main print usage and exit with code 2.
var errUsage = errors.New("usage")

func usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, `CaseForge %s

Usage:
  caseforge version                       Show version
  caseforge serve [-addr :8080]           Serve the design API
  caseforge validate <document.json>      Check a design document
  caseforge render -in doc.json -model M [-material flat|wrapped] [-color C] -out out.png [-width W] [-height H] [-template=false]
  caseforge export -in doc.json -model M [-material ...] [-color C] -out design.zip
  caseforge print  -in doc.json -model M [-material ...] [-color C] -out sheet.pdf [-bleed 2] [-guides]
  caseforge save   -in doc.json -model M [-material ...] [-color C]    Save through the configured store
  caseforge get    <id> -out <dir>        Fetch a saved design
  caseforge templates export|install <pack.zip>   Move case templates between installations
  caseforge login  <token>                Store the backend token in the OS keychain
`, version.String())
}

// sessionRef lets the crash handler autosave whichever session is active when a panic unwinds.
type sessionRef struct {
	s   *editor.Session
	dir string
}

func (r *sessionRef) Autosave() (string, error) {
	if r.s == nil {
		return "", errors.New("no active design")
	}
	return editor.Autosave{Session: r.s, Dir: r.dir}.Autosave()
}

func crashDir() string {
	p, err := config.ConfigPath()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(p), "crash")
}

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, token, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
	}
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	l := applog.WithComponent("cli")

	ref := &sessionRef{dir: crashDir()}
	defer crash.Recover(crash.Options{Dir: ref.dir, Autosave: ref})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, token: token, out: os.Stdout, session: ref, log: l}
	err = a.run(ctx, os.Args[1:])
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		usage(os.Stderr)
		os.Exit(2)
	default:
		l.Error("command failed", slog.Any("err", err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
