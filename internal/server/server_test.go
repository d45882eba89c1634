/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"caseforge/internal/backend"
	"caseforge/internal/casecfg"
	"caseforge/internal/config"
	"caseforge/internal/storage"
	"caseforge/internal/vector"
)

const emptyDoc = `{"version":1,"strokes":[],"images":[],"texts":[]}`

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func newTestServer(t *testing.T) (*httptest.Server, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	srv := New(mem, casecfg.Default(), config.Defaults().Server)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, mem
}

type form struct {
	fields map[string]string
	files  map[string][]byte
}

func (f form) post(t *testing.T, url string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range f.fields {
		_ = mw.WriteField(k, v)
	}
	for k, v := range f.files {
		w, err := mw.CreateFormFile(k, k)
		if err != nil {
			t.Fatalf("part: %v", err)
		}
		_, _ = w.Write(v)
	}
	_ = mw.Close()
	resp, err := http.Post(url+"/api/designs", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func validForm(t *testing.T) form {
	p := pngBytes(t)
	return form{
		fields: map[string]string{"model": "iphone-x", "material": "flat", "color": "black"},
		files:  map[string][]byte{"document": []byte(emptyDoc), "design": p, "stage": p},
	}
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" || body["version"] == "" {
		t.Fatalf("unexpected health: %d %v", resp.StatusCode, body)
	}
}

func TestCatalog(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/catalog")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var cat casecfg.Catalog
	if err := json.NewDecoder(resp.Body).Decode(&cat); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cat.Models) == 0 || len(cat.Materials) != 2 {
		t.Fatalf("unexpected catalog: %+v", cat)
	}
}

func TestSaveWithFormFields(t *testing.T) {
	ts, mem := newTestServer(t)
	resp := validForm(t).post(t, ts.URL)
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, b)
	}
	var out backend.SaveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.ID == "" {
		t.Fatalf("bad response %+v err=%v", out, err)
	}
	d, err := mem.Get(context.Background(), out.ID)
	if err != nil {
		t.Fatalf("stored design: %v", err)
	}
	if d.Case.Model != "iphone-x" || d.Case.Material != vector.MaterialFlat || d.Case.Color != "black" {
		t.Fatalf("case not stored: %+v", d.Case)
	}
}

func TestSaveIgnoresClientID(t *testing.T) {
	ts, mem := newTestServer(t)
	first := validForm(t)
	first.fields["id"] = "victim"
	second := validForm(t)
	second.fields["id"] = "victim"
	second.files["document"] = []byte(`{"version":1,"strokes":[{"id":"s","x":0,"y":0,"points":[{"x":1,"y":1},{"x":9,"y":9}],"width":5,"color":"#000000"}],"images":[],"texts":[]}`)

	var ids []string
	for _, f := range []form{first, second} {
		resp := f.post(t, ts.URL)
		if resp.StatusCode != http.StatusCreated {
			b, _ := io.ReadAll(resp.Body)
			t.Fatalf("status %d: %s", resp.StatusCode, b)
		}
		var out backend.SaveResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		resp.Body.Close()
		if out.ID == "victim" {
			t.Fatalf("server accepted a client-chosen id")
		}
		ids = append(ids, out.ID)
	}
	if ids[0] == ids[1] {
		t.Fatalf("both saves got id %s", ids[0])
	}
	d, err := mem.Get(context.Background(), ids[0])
	if err != nil {
		t.Fatalf("first design: %v", err)
	}
	if string(d.Document) != emptyDoc {
		t.Fatalf("first design was overwritten: %s", d.Document)
	}
	if _, err := mem.Get(context.Background(), "victim"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected no design under the client id, got %v", err)
	}
}

func TestSaveRejects(t *testing.T) {
	ts, _ := newTestServer(t)
	cases := map[string]func(f form){
		"unknown model":    func(f form) { f.fields["model"] = "nokia-3310" },
		"unknown material": func(f form) { f.fields["material"] = "leather" },
		"invalid document": func(f form) { f.files["document"] = []byte(`{"version":1}`) },
		"missing stage":    func(f form) { delete(f.files, "stage") },
		"design not png":   func(f form) { f.files["design"] = []byte("GIF89a") },
	}
	for name, mutate := range cases {
		f := validForm(t)
		mutate(f)
		resp := f.post(t, ts.URL)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, resp.StatusCode)
		}
		var body map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body["error"] == "" {
			t.Fatalf("%s: missing error message", name)
		}
	}
}

func TestSaveTooLarge(t *testing.T) {
	cfg := config.Defaults().Server
	cfg.MaxUploadMB = 1
	h := New(storage.NewMemory(), casecfg.Default(), cfg).Router()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("model", "iphone-x")
	w, _ := mw.CreateFormFile("stage", "stage.png")
	_, _ = w.Write(bytes.Repeat([]byte{1}, 2<<20))
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/designs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge && rec.Code != http.StatusBadRequest {
		t.Fatalf("expected rejection, got %d", rec.Code)
	}
}

func TestGetUnknown(t *testing.T) {
	ts, _ := newTestServer(t)
	for path, want := range map[string]int{
		"/api/designs/" + storage.NewID():                 http.StatusNotFound,
		"/api/designs/" + storage.NewID() + "/design.png": http.StatusNotFound,
		"/api/designs/unknown":                            http.StatusNotFound,
	} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("%s: expected %d, got %d", path, want, resp.StatusCode)
		}
	}
}

func TestClientRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)
	c := backend.NewClient(ts.URL, "")
	ctx := context.Background()
	p := pngBytes(t)
	in := storage.Design{
		Case:      casecfg.Case{Model: "iphone-x", Material: vector.MaterialWrapped, Color: "blue"},
		Document:  []byte(emptyDoc),
		DesignPNG: p,
		StagePNG:  p,
	}
	id, err := c.Save(ctx, in)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := c.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != id || got.Case != in.Case {
		t.Fatalf("unexpected design: %+v", got)
	}
	if !bytes.Equal(got.DesignPNG, p) || !bytes.Equal(got.StagePNG, p) {
		t.Fatalf("png mismatch")
	}
	if !strings.Contains(string(got.Document), `"strokes"`) {
		t.Fatalf("document lost: %s", got.Document)
	}
	if _, err := c.Get(ctx, storage.NewID()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	cat, err := c.Catalog(ctx)
	if err != nil || len(cat.Models) == 0 {
		t.Fatalf("catalog: %v %+v", err, cat)
	}
}

func TestImageHeaders(t *testing.T) {
	ts, _ := newTestServer(t)
	c := backend.NewClient(ts.URL, "")
	p := pngBytes(t)
	id, err := c.Save(context.Background(), storage.Design{
		Case:     casecfg.Case{Model: "iphone-x", Material: vector.MaterialFlat},
		Document: []byte(emptyDoc), DesignPNG: p, StagePNG: p,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	resp, err := http.Get(ts.URL + "/api/designs/" + id + "/stage.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type %q", ct)
	}
}
