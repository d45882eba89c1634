/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package document is the transportable form of a design: an order-preserving
// snapshot of strokes, images (with inline pixel data) and texts.
package document

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	gojsonschema "github.com/xeipuuv/gojsonschema"
	_ "golang.org/x/image/webp"

	"caseforge/internal/scene"
	"caseforge/internal/vector"
)

// Version is the current document format version.
const Version = 1

// ErrInvalidDocument is returned when a document fails schema validation or decoding.
var ErrInvalidDocument = errors.New("invalid design document")

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

// Schema returns the JSON schema the document is validated against.
func Schema() []byte { return append([]byte(nil), schemaJSON...) }

type Document struct {
	Version int      `json:"version"`
	Strokes []Stroke `json:"strokes"`
	Images  []Image  `json:"images"`
	Texts   []Text   `json:"texts"`
}

type Stroke struct {
	ID       string      `json:"id"`
	X        float64     `json:"x"`
	Y        float64     `json:"y"`
	Rotation float64     `json:"rotation,omitempty"`
	Points   []vector.Pt `json:"points"`
	Width    float64     `json:"width,omitempty"`
	Color    string      `json:"color,omitempty"`
}

type Image struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation,omitempty"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Color    string  `json:"color,omitempty"`
	// Src is a data URL (data:image/png;base64,...).
	Src string `json:"src"`
}

type Text struct {
	ID         string  `json:"id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Rotation   float64 `json:"rotation,omitempty"`
	Text       string  `json:"text"`
	FontSize   float64 `json:"fontSize"`
	FontFamily string  `json:"fontFamily"`
	Fill       string  `json:"fill,omitempty"`
}

// FromSnapshot builds a document from the scene, encoding image pixels as PNG data URLs.
func FromSnapshot(snap scene.Snapshot) (Document, error) {
	doc := Document{Version: Version, Strokes: []Stroke{}, Images: []Image{}, Texts: []Text{}}
	for _, s := range snap.ListAll() {
		switch s.Kind {
		case scene.KindStroke:
			doc.Strokes = append(doc.Strokes, Stroke{
				ID: s.ID, X: s.X, Y: s.Y, Rotation: s.Rotation,
				Points: append([]vector.Pt(nil), s.Points...), Width: s.StrokeWidth, Color: s.Color,
			})
		case scene.KindImage:
			src, err := EncodeDataURL(s.Image)
			if err != nil {
				return Document{}, fmt.Errorf("encode image %s: %w", s.ID, err)
			}
			doc.Images = append(doc.Images, Image{
				ID: s.ID, X: s.X, Y: s.Y, Rotation: s.Rotation,
				Width: s.Width, Height: s.Height, Color: s.Color, Src: src,
			})
		case scene.KindText:
			doc.Texts = append(doc.Texts, Text{
				ID: s.ID, X: s.X, Y: s.Y, Rotation: s.Rotation,
				Text: s.Text, FontSize: s.FontSize, FontFamily: s.FontFamily, Fill: s.Fill,
			})
		}
	}
	return doc, nil
}

// ImageError reports an embedded image that could not be decoded.
type ImageError struct {
	ID  string
	Err error
}

func (e *ImageError) Error() string { return fmt.Sprintf("image %s: %v", e.ID, e.Err) }
func (e *ImageError) Unwrap() error { return e.Err }

// Shapes reconstructs scene shapes in document order (strokes, images, texts).
// Images whose data fails to decode are omitted and reported in errs; everything
// else is still returned.
func (d Document) Shapes() (shapes []scene.Shape, errs []error) {
	for _, s := range d.Strokes {
		if len(s.Points) == 0 {
			errs = append(errs, fmt.Errorf("stroke %s: no points", s.ID))
			continue
		}
		shapes = append(shapes, scene.Shape{
			ID: s.ID, Kind: scene.KindStroke, X: s.X, Y: s.Y, Rotation: s.Rotation,
			Points: append([]vector.Pt(nil), s.Points...), StrokeWidth: s.Width, Color: s.Color,
		})
	}
	for _, im := range d.Images {
		img, err := DecodeDataURL(im.Src)
		if err != nil {
			errs = append(errs, &ImageError{ID: im.ID, Err: err})
			continue
		}
		shapes = append(shapes, scene.Shape{
			ID: im.ID, Kind: scene.KindImage, X: im.X, Y: im.Y, Rotation: im.Rotation,
			Width: im.Width, Height: im.Height, Color: im.Color, Image: img,
		})
	}
	for _, t := range d.Texts {
		shapes = append(shapes, scene.Shape{
			ID: t.ID, Kind: scene.KindText, X: t.X, Y: t.Y, Rotation: t.Rotation,
			Text: t.Text, FontSize: t.FontSize, FontFamily: t.FontFamily, Fill: t.Fill,
		})
	}
	return shapes, errs
}

// Snapshot reconstructs a scene snapshot, failing on the first undecodable image.
func (d Document) Snapshot() (scene.Snapshot, error) {
	shapes, errs := d.Shapes()
	if len(errs) > 0 {
		return scene.Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidDocument, errs[0])
	}
	return scene.NewSnapshot(shapes), nil
}

// Counts returns the number of strokes, images and texts.
func (d Document) Counts() (strokes, images, texts int) {
	return len(d.Strokes), len(d.Images), len(d.Texts)
}

// Marshal encodes the document as JSON.
func (d Document) Marshal() ([]byte, error) { return json.Marshal(d) }

// Validate checks raw JSON against the document schema.
func Validate(data []byte) error {
	res, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(msgs, "; "))
	}
	return nil
}

// Parse validates and decodes raw JSON.
func Parse(data []byte) (Document, error) {
	if err := Validate(data); err != nil {
		return Document{}, err
	}
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return d, nil
}

const pngPrefix = "data:image/png;base64,"

// EncodeDataURL encodes img as a PNG data URL.
func EncodeDataURL(img image.Image) (string, error) {
	if img == nil {
		return "", errors.New("nil image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return pngPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeDataURL decodes a base64 image data URL of any registered format.
func DecodeDataURL(src string) (image.Image, error) {
	if !strings.HasPrefix(src, "data:") {
		return nil, errors.New("not a data URL")
	}
	comma := strings.IndexByte(src, ',')
	if comma < 0 || !strings.HasSuffix(src[:comma], ";base64") {
		return nil, errors.New("data URL is not base64")
	}
	raw, err := base64.StdEncoding.DecodeString(src[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return img, nil
}
