package decoder

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/maauso/mediagen-api/internal/media"
	"github.com/maauso/mediagen-api/internal/toolbinding"
)

var (
	requestIDPattern = regexp.MustCompile(`(?i)request[ _]?id[^0-9a-z]{0,8}([0-9a-f][0-9a-f-]{6,}[0-9a-f])`)
	fencePattern     = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

	videoURLPattern = regexp.MustCompile(`(?i)https?://[^\s"'<>()\[\]]+?\.(?:mp4|webm|mov|m4v)(?:\?[^\s"'<>()\[\]]*)?`)
	imageURLPattern = regexp.MustCompile(`(?i)https?://[^\s"'<>()\[\]]+?\.(?:png|jpe?g|webp|gif)(?:\?[^\s"'<>()\[\]]*)?`)
)

// degradedMarkers identify result errors returned by backends that finished
// the job but could not hand back a usable URL.
var degradedMarkers = []string{
	"failed to get result",
	"invalid video url format",
	"invalid image url format",
	"url validation failed",
}

// IsDegradedText reports whether text matches a known degraded-success marker.
func IsDegradedText(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range degradedMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func inlineMedia(resp toolbinding.Response) (Payload, bool) {
	for _, b := range resp.Blocks {
		if (b.Type == toolbinding.BlockImage || b.Type == toolbinding.BlockVideo) && len(b.Data) > 0 {
			return Payload{Kind: PayloadDirectMedia, Data: b.Data, MIMEHint: b.MIMEType}, true
		}
	}
	return Payload{}, false
}

// parseObject parses text as a JSON object, unwrapping a markdown code fence.
func parseObject(text string) (map[string]any, bool) {
	text = strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// eachObject calls fn for every text block that parses as a JSON object
// until fn reports a match.
func eachObject(resp toolbinding.Response, fn func(map[string]any) (Payload, bool)) (Payload, bool) {
	for _, text := range resp.Texts() {
		obj, ok := parseObject(text)
		if !ok {
			continue
		}
		if p, ok := fn(obj); ok {
			return p, true
		}
	}
	return Payload{}, false
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

func jsonRequestID(resp toolbinding.Response) (Payload, bool) {
	return eachObject(resp, func(obj map[string]any) (Payload, bool) {
		if id := stringField(obj, "request_id"); id != "" {
			return Payload{Kind: PayloadRequestID, RequestID: id}, true
		}
		return Payload{}, false
	})
}

func textRequestID(resp toolbinding.Response) (Payload, bool) {
	for _, text := range resp.Texts() {
		if m := requestIDPattern.FindStringSubmatch(text); m != nil {
			return Payload{Kind: PayloadRequestID, RequestID: m[1]}, true
		}
	}
	return Payload{}, false
}

func remote(url string) (Payload, bool) {
	if url == "" {
		return Payload{}, false
	}
	return Payload{Kind: PayloadRemoteURL, URL: url}, true
}

type resultFields struct {
	topLevel func(toolbinding.Response) (Payload, bool)
	nested   func(toolbinding.Response) (Payload, bool)
	array    func(toolbinding.Response) (Payload, bool)
}

func resultFieldsFor(kind media.Kind) resultFields {
	if kind == media.KindVideo {
		return resultFields{
			topLevel: objectRule(func(obj map[string]any) string {
				return stringField(obj, "video_url")
			}),
			nested: objectRule(func(obj map[string]any) string {
				return nestedURL(obj, "video")
			}),
			array: objectRule(func(obj map[string]any) string {
				return firstArrayURL(obj, "videos")
			}),
		}
	}
	// Images have no separate array rule: the url list is read first and
	// images[0].url takes the array slot.
	return resultFields{
		topLevel: objectRule(func(obj map[string]any) string {
			if u := stringField(obj, "image_url"); u != "" {
				return u
			}
			if list, ok := obj["image_urls"].([]any); ok && len(list) > 0 {
				s, _ := list[0].(string)
				return strings.TrimSpace(s)
			}
			return ""
		}),
		nested: objectRule(func(obj map[string]any) string {
			if u := nestedURL(obj, "image"); u != "" {
				return u
			}
			return firstArrayURL(obj, "images")
		}),
	}
}

func objectRule(extract func(map[string]any) string) func(toolbinding.Response) (Payload, bool) {
	return func(resp toolbinding.Response) (Payload, bool) {
		return eachObject(resp, func(obj map[string]any) (Payload, bool) {
			return remote(extract(obj))
		})
	}
}

func nestedURL(obj map[string]any, key string) string {
	inner, ok := obj[key].(map[string]any)
	if !ok {
		return ""
	}
	return stringField(inner, "url")
}

func firstArrayURL(obj map[string]any, key string) string {
	list, ok := obj[key].([]any)
	if !ok || len(list) == 0 {
		return ""
	}
	switch first := list[0].(type) {
	case map[string]any:
		return stringField(first, "url")
	case string:
		return strings.TrimSpace(first)
	default:
		return ""
	}
}

func textMediaURL(kind media.Kind) func(toolbinding.Response) (Payload, bool) {
	pattern := imageURLPattern
	if kind == media.KindVideo {
		pattern = videoURLPattern
	}
	return func(resp toolbinding.Response) (Payload, bool) {
		for _, text := range resp.Texts() {
			if u := pattern.FindString(text); u != "" {
				return remote(u)
			}
		}
		return Payload{}, false
	}
}

func degradedSuccess(kind media.Kind) func(toolbinding.Response) (Payload, bool) {
	return func(resp toolbinding.Response) (Payload, bool) {
		for _, text := range resp.Texts() {
			if IsDegradedText(text) {
				return Payload{
					Kind:     PayloadRemoteURL,
					URL:      media.PlaceholderURL(kind),
					Degraded: true,
					LastText: text,
				}, true
			}
		}
		return Payload{}, false
	}
}
