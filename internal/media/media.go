// Package media holds the media kinds produced by generation services and
// the helpers shared by every stage that touches output files: extension
// selection and the placeholder artifacts used for degraded results.
package media

import (
	"encoding/base64"
	"mime"
	"net/url"
	"path"
	"strings"
)

// Kind is the type of media a job produces.
type Kind string

const (
	// KindImage produces a still image.
	KindImage Kind = "image"
	// KindVideo produces a video clip.
	KindVideo Kind = "video"
)

// IsValid returns true if the kind is known.
func (k Kind) IsValid() bool {
	return k == KindImage || k == KindVideo
}

// DefaultExtension returns the file extension used when nothing better is known.
func (k Kind) DefaultExtension() string {
	if k == KindVideo {
		return "mp4"
	}
	return "png"
}

// placeholderHost never resolves, so a placeholder URL cannot be fetched by accident.
const placeholderHost = "placeholder.invalid"

// 1x1 transparent PNG.
const placeholderPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

// ftyp box (isom, minor 0x200, compatible isom/mp41) followed by an empty mdat box.
var placeholderMP4 = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p',
	'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00,
	'i', 's', 'o', 'm', 'm', 'p', '4', '1',
	0x00, 0x00, 0x00, 0x08, 'm', 'd', 'a', 't',
}

// Placeholder returns a minimal valid artifact for the kind.
func Placeholder(k Kind) []byte {
	if k == KindVideo {
		out := make([]byte, len(placeholderMP4))
		copy(out, placeholderMP4)
		return out
	}
	data, err := base64.StdEncoding.DecodeString(placeholderPNG)
	if err != nil {
		// The constant is valid base64; this cannot happen.
		panic(err)
	}
	return data
}

// PlaceholderURL returns the synthetic URL substituted for degraded results.
func PlaceholderURL(k Kind) string {
	return "https://" + placeholderHost + "/degraded." + k.DefaultExtension()
}

// IsPlaceholderURL reports whether raw points at the synthetic placeholder host.
func IsPlaceholderURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), placeholderHost)
}

var mimeExtensions = map[string]string{
	"image/png":       "png",
	"image/jpeg":      "jpg",
	"image/jpg":       "jpg",
	"image/webp":      "webp",
	"image/gif":       "gif",
	"video/mp4":       "mp4",
	"video/webm":      "webm",
	"video/quicktime": "mov",
	"video/x-m4v":     "m4v",
}

var knownExtensions = map[Kind][]string{
	KindImage: {"png", "jpg", "jpeg", "webp", "gif"},
	KindVideo: {"mp4", "webm", "mov", "m4v"},
}

// Extension picks the output file extension for a result, preferring the MIME
// hint, then the extension of the source URL path, then the kind default.
func Extension(k Kind, mimeHint, sourceURL string) string {
	if mimeHint != "" {
		mt, _, err := mime.ParseMediaType(mimeHint)
		if err == nil {
			if ext, ok := mimeExtensions[strings.ToLower(mt)]; ok {
				return ext
			}
		}
	}
	if sourceURL != "" {
		if u, err := url.Parse(sourceURL); err == nil {
			ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
			for _, known := range knownExtensions[k] {
				if ext == known {
					if ext == "jpeg" {
						return "jpg"
					}
					return ext
				}
			}
		}
	}
	return k.DefaultExtension()
}

// MIMEType returns the content type for a file extension, or "" when unknown.
func MIMEType(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "jpeg" {
		ext = "jpg"
	}
	for mt, e := range mimeExtensions {
		if e == ext && mt != "image/jpg" {
			return mt
		}
	}
	return ""
}
