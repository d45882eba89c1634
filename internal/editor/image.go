/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	applog "caseforge/internal/log"
	"caseforge/internal/vector"
)

// PlaceBox is the box an uploaded image is fitted into, in design units.
var PlaceBox = vector.Size{W: 200, H: 200}

// PlaceImage decodes an uploaded file and adds it centered on the base canvas,
// fitted into PlaceBox without upscaling. Nothing is added when decoding fails or
// ctx is done first.
func (s *Session) PlaceImage(ctx context.Context, r io.Reader) (string, error) {
	l := applog.WithOperation(s.log, "place_image")
	type result struct {
		img    image.Image
		format string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		img, format, err := image.Decode(r)
		done <- result{img, format, err}
	}()
	var res result
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res = <-done:
	}
	if res.err != nil {
		l.Warn("image decode failed", slog.Any("err", res.err))
		return "", fmt.Errorf("%w: %v", ErrImageDecode, res.err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b := res.img.Bounds()
	size := vector.FitImage(b.Dx(), b.Dy(), PlaceBox)
	if size.W <= 0 || size.H <= 0 {
		l.Warn("image has no pixels", slog.String("format", res.format))
		return "", fmt.Errorf("%w: empty %s image", ErrImageDecode, res.format)
	}
	c := vector.BaseRect().Center()
	var id string
	s.mutate(func() {
		id = s.store.AddImage(res.img, c.X-size.W/2, c.Y-size.H/2, size.W, size.H, s.controls.Color)
	})
	l.Debug("image placed", slog.String("id", id), slog.String("format", res.format),
		slog.Int("px_w", b.Dx()), slog.Int("px_h", b.Dy()))
	return id, nil
}
