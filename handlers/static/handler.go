// Copyright 2024 The httpfront Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package static implements StaticAssetHandler: it serves files out of a
// fixed root directory whose contents were enumerated once at
// construction, so it never touches the filesystem outside of that
// pre-built index at request time.
package static

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/zumaad/my-http-server/httpfront"
	"github.com/zumaad/my-http-server/internal/wire"
)

// TypeTag is the settings "type" value that selects this handler.
const TypeTag = "serveStatic"

func init() {
	httpfront.RegisterHandlerType(TypeTag, construct)
}

// mimeByExtension is the fixed lookup table lifted from the original's
// StaticAssetHandler.file_extension_mime_type.
var mimeByExtension = map[string]string{
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".jfif":  "image/jpeg",
	".pjpeg": "image/jpeg",
	".pjp":   "image/jpeg",
	".png":   "image/png",
	".css":   "text/css",
	".html":  "text/html",
	".js":    "text/javascript",
	".mp4":   "video/mp4",
	".flv":   "video/x-flv",
	".m3u8":  "application/x-mpegURL",
	".ts":    "video/MP2T",
	".3gp":   "video/3gpp",
	".mov":   "video/quicktime",
	".avi":   "video/x-msvideo",
	".wmv":   "video/x-ms-wmv",
}

func mimeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := mimeByExtension[ext]; ok {
		return ct
	}
	return "text/html"
}

// Handler resolves a request URL to a path under Root using the matched
// URL prefix, and serves it only if that path was present in the index
// built at construction time.
type Handler struct {
	criteria httpfront.MatchCriteria
	root     string

	// index holds the xxhash of every canonical file path discovered under
	// root at construction time, enumerated recursively into an in-memory
	// set. Hashing keeps membership checks O(1) without retaining one
	// string per file for the lifetime of the process.
	index map[uint64]struct{}
}

func construct(criteria httpfront.MatchCriteria, context map[string]any, _ *httpfront.Context) (httpfront.Handler, error) {
	root, _ := context["staticRoot"].(string)
	if root == "" {
		return nil, fmt.Errorf("static: context.staticRoot is required")
	}
	if _, ok := criteria["url"]; !ok {
		return nil, fmt.Errorf("static: criteria.url is required (used for prefix-strip)")
	}

	h := &Handler{criteria: criteria, root: root, index: make(map[uint64]struct{})}
	if err := h.buildIndex(); err != nil {
		return nil, fmt.Errorf("static: building file index: %w", err)
	}
	return h, nil
}

func (h *Handler) buildIndex() error {
	return filepath.WalkDir(h.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		canonical, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		h.index[hashPath(canonical)] = struct{}{}
		return nil
	})
}

func hashPath(path string) uint64 {
	return xxhash.Sum64String(path)
}

// ShouldHandle implements httpfront.Handler.
func (h *Handler) ShouldHandle(req *wire.Request) bool {
	return h.criteria.ShouldHandle(req)
}

// removeURLPrefix strips the first matching criteria["url"] prefix from
// req.URL. It must only ever be called after ShouldHandle has returned
// true for req; a mismatch here is an invariant violation, not a
// recoverable error, hence the panic below.
func (h *Handler) removeURLPrefix(url string) string {
	for _, prefix := range h.criteria["url"] {
		if strings.HasPrefix(url, prefix) {
			return url[len(prefix):]
		}
	}
	panic("static: removeURLPrefix called with a URL that doesn't match any criteria prefix; ShouldHandle must gate Handle")
}

// Handle computes the candidate path, checks it against the pre-built
// index, and either serves the bytes or 404s.
func (h *Handler) Handle(req *wire.Request) (*wire.Response, error) {
	suffix := h.removeURLPrefix(req.URL)
	candidate := filepath.Join(h.root, suffix)

	canonical, err := filepath.Abs(candidate)
	if err != nil {
		return wire.NewErrorResponse(404, notFoundBody(candidate)), nil
	}

	// Belt-and-suspenders sandbox check: even though the index already
	// guarantees no path outside root was recorded, a caller that mutates
	// h.root after construction or feeds in a pathologically crafted
	// suffix still can't escape it.
	if !strings.HasPrefix(canonical, filepath.Clean(h.root)+string(filepath.Separator)) && canonical != filepath.Clean(h.root) {
		return wire.NewErrorResponse(404, notFoundBody(candidate)), nil
	}

	if _, ok := h.index[hashPath(canonical)]; !ok {
		return wire.NewErrorResponse(404, notFoundBody(candidate)), nil
	}

	body, err := os.ReadFile(canonical)
	if err != nil {
		return wire.NewErrorResponse(404, notFoundBody(candidate)), nil
	}

	return &wire.Response{
		Status:  200,
		Headers: map[string]string{"Content-Type": mimeFor(candidate)},
		Body:    body,
	}, nil
}

func notFoundBody(path string) string {
	return fmt.Sprintf(
		"the file requested was searched for in %s and it does not exist.\n"+
			"A proper request for a static resource is any of the strings the request should start with "+
			"(as defined in your settings file) plus the relative path to your resource starting from staticRoot.",
		path)
}
