/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"caseforge/internal/casecfg"
	"caseforge/internal/config"
	"caseforge/internal/document"
	"caseforge/internal/editor"
	"caseforge/internal/export"
	"caseforge/internal/render"
	"caseforge/internal/scene"
	"caseforge/internal/server"
	"caseforge/internal/stores"
	"caseforge/internal/templatepack"
	"caseforge/internal/vector"
	"caseforge/internal/version"
)

type app struct {
	cfg     config.AppConfig
	token   string
	out     io.Writer
	session *sessionRef
	log     *slog.Logger
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "version", "--version", "-v":
		_, _ = fmt.Fprintln(a.out, "CaseForge", version.String())
		return nil
	case "serve":
		return a.serve(ctx, rest)
	case "validate":
		return a.validate(rest)
	case "render":
		return a.render(ctx, rest)
	case "export":
		return a.exportZip(ctx, rest)
	case "print":
		return a.print(ctx, rest)
	case "save":
		return a.save(ctx, rest)
	case "get":
		return a.get(ctx, rest)
	case "templates":
		return a.templates(rest)
	case "login":
		if len(rest) != 1 || rest[0] == "" {
			return errUsage
		}
		if err := config.Save(a.cfg, rest[0]); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
		_, _ = fmt.Fprintln(a.out, "Token stored.")
		return nil
	case "help", "-h", "--help":
		usage(a.out)
		return nil
	}
	return errUsage
}

func (a *app) catalog() (casecfg.Catalog, error) {
	if a.cfg.Catalog.Path == "" {
		return casecfg.Default(), nil
	}
	return casecfg.Load(a.cfg.Catalog.Path)
}

// designFlags are shared by every command that rebuilds an editor from a document.
type designFlags struct {
	in       string
	model    string
	material string
	color    string
	out      string
}

func (d designFlags) kase() casecfg.Case {
	return casecfg.Case{Model: d.model, Material: vector.Material(d.material), Color: d.color}
}

func (d *designFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&d.in, "in", "", "design document (JSON)")
	fs.StringVar(&d.model, "model", "", "case model id")
	fs.StringVar(&d.material, "material", string(vector.MaterialFlat), "flat or wrapped")
	fs.StringVar(&d.color, "color", "", "case color name or #rrggbb")
	fs.StringVar(&d.out, "out", "", "output path")
}

func parse(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

// openSession loads a document into a fresh editor session. Images that fail to
// decode are skipped with a warning so the rest of the design still renders.
func (a *app) openSession(d designFlags) (*editor.Session, error) {
	if d.in == "" || d.model == "" {
		return nil, fmt.Errorf("%w: -in and -model are required", errUsage)
	}
	raw, err := os.ReadFile(d.in)
	if err != nil {
		return nil, err
	}
	doc, err := document.Parse(raw)
	if err != nil {
		return nil, err
	}
	cat, err := a.catalog()
	if err != nil {
		return nil, err
	}
	opts := editor.OptionsFromConfig(a.cfg.Editor)
	opts.Catalog = cat
	opts.Templates = casecfg.NewTemplates(a.cfg.Catalog.TemplatesDir)
	s, err := editor.NewSession(d.kase(), opts)
	if err != nil {
		return nil, err
	}
	shapes, errs := doc.Shapes()
	for _, e := range errs {
		a.log.Warn("skipping shape", slog.Any("err", e))
	}
	s.Load(scene.NewSnapshot(shapes))
	if a.session != nil {
		a.session.s = s
	}
	return s, nil
}

func (a *app) serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", a.cfg.Server.Addr, "listen address")
	if err := parse(fs, args); err != nil {
		return err
	}
	cat, err := a.catalog()
	if err != nil {
		return err
	}
	cfg := a.cfg
	if strings.EqualFold(strings.TrimSpace(cfg.Storage.Type), stores.TypeRemote) {
		return fmt.Errorf("serve cannot use the remote store")
	}
	st, err := stores.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	sc := cfg.Server
	sc.Addr = *addr
	return server.New(st, cat, sc).ListenAndServe(ctx)
}

func (a *app) validate(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	doc, err := document.Parse(raw)
	if err != nil {
		return err
	}
	strokes, images, texts := doc.Counts()
	_, _ = fmt.Fprintf(a.out, "valid: %d strokes, %d images, %d texts\n", strokes, images, texts)
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// render replays a stored document with the display renderer, without an editor.
func (a *app) render(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	var d designFlags
	d.register(fs)
	width := fs.Int("width", 0, "max output width in px")
	height := fs.Int("height", 0, "max output height in px")
	withTemplate := fs.Bool("template", true, "draw the case mockup under the design")
	if err := parse(fs, args); err != nil {
		return err
	}
	if d.in == "" || d.model == "" || d.out == "" {
		return fmt.Errorf("%w: -in, -model and -out are required", errUsage)
	}
	raw, err := os.ReadFile(d.in)
	if err != nil {
		return err
	}
	doc, err := document.Parse(raw)
	if err != nil {
		return err
	}
	cat, err := a.catalog()
	if err != nil {
		return err
	}
	disp := render.Display{Catalog: cat, Templates: casecfg.NewTemplates(a.cfg.Catalog.TemplatesDir)}
	res, err := disp.Render(ctx, render.DisplayRequest{
		Document:     doc,
		Case:         d.kase(),
		Width:        *width,
		Height:       *height,
		WithTemplate: *withTemplate,
	})
	if err != nil {
		return err
	}
	data, err := export.EncodePNG(res.Image)
	if err != nil {
		return err
	}
	if err := writeFile(d.out, data); err != nil {
		return err
	}
	if len(res.Skipped) > 0 {
		_, _ = fmt.Fprintf(a.out, "Skipped %d undecodable images\n", len(res.Skipped))
	}
	_, _ = fmt.Fprintln(a.out, "Wrote", d.out)
	return nil
}

func (a *app) exportZip(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	var d designFlags
	d.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if d.out == "" {
		return fmt.Errorf("%w: -out is required", errUsage)
	}
	s, err := a.openSession(d)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := s.ExportArchive(ctx, &buf); err != nil {
		return err
	}
	if err := writeFile(d.out, buf.Bytes()); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.out, "Wrote", d.out)
	return nil
}

func (a *app) print(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("print", flag.ContinueOnError)
	var d designFlags
	d.register(fs)
	bleed := fs.Float64("bleed", 2, "bleed in mm")
	guides := fs.Bool("guides", false, "draw the trim guide")
	if err := parse(fs, args); err != nil {
		return err
	}
	if d.out == "" {
		return fmt.Errorf("%w: -out is required", errUsage)
	}
	s, err := a.openSession(d)
	if err != nil {
		return err
	}
	ex, err := s.ExportDesign(ctx)
	if err != nil {
		return err
	}
	model := s.Resolved().Model
	err = export.PrintSheetFile(d.out, model, ex.Design, export.PrintOptions{
		Bleed:         *bleed,
		IncludeGuides: *guides,
		Title:         model.Name,
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.out, "Wrote", d.out)
	return nil
}

func (a *app) save(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("save", flag.ContinueOnError)
	var d designFlags
	d.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	s, err := a.openSession(d)
	if err != nil {
		return err
	}
	st, err := stores.Open(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	id, err := s.Save(ctx, st)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.out, id)
	return nil
}

func (a *app) get(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	id := args[0]
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	out := fs.String("out", ".", "output directory")
	if err := parse(fs, args[1:]); err != nil {
		return err
	}
	st, err := stores.Open(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	design, err := st.Get(ctx, id)
	if err != nil {
		return err
	}
	dir := filepath.Join(*out, design.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, data := range map[string][]byte{
		"document.json": design.Document,
		"design.png":    design.DesignPNG,
		"stage.png":     design.StagePNG,
	} {
		if len(data) == 0 {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return err
		}
	}
	_, _ = fmt.Fprintf(a.out, "%s (%s, %s) -> %s\n", design.ID, design.Case.Model, design.Case.Material, dir)
	return nil
}

func (a *app) templates(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	dir := a.cfg.Catalog.TemplatesDir
	var (
		n   int
		err error
	)
	switch args[0] {
	case "export":
		n, err = templatepack.Export(dir, args[1])
	case "install":
		n, err = templatepack.Install(dir, args[1])
	default:
		return errUsage
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "%s: %d templates\n", args[0], n)
	return nil
}
