package job

import (
	"github.com/maauso/mediagen-api/internal/media"
)

// Submit argument names understood by generation tools.
const (
	ParamPrompt         = "prompt"
	ParamRequestID      = "request_id"
	ParamAspectRatio    = "aspect_ratio"
	ParamDuration       = "duration"
	ParamResolution     = "resolution"
	ParamNumImages      = "num_images"
	ParamImageSize      = "image_size"
	ParamSeed           = "seed"
	ParamNegativePrompt = "negative_prompt"
)

// Options are the caller's choices for one generation request.
type Options struct {
	// Kind selects image or video. It may be empty when ServiceID is set.
	Kind media.Kind
	// ServiceID selects the registry entry; empty uses the default for Kind.
	ServiceID string
	// TaskID correlates progress events; empty generates one.
	TaskID string

	AspectRatio    string
	Duration       int
	Resolution     string
	NumImages      int
	ImageSize      string
	Seed           *int64
	NegativePrompt string

	// Extra holds additional service-specific arguments. Named fields win
	// over Extra entries with the same key.
	Extra map[string]any
}

// BuildParameters returns the submit arguments besides the prompt.
// Zero-valued fields are omitted.
func BuildParameters(opts Options) map[string]any {
	params := make(map[string]any, len(opts.Extra)+4)
	for k, v := range opts.Extra {
		if k == ParamPrompt || k == ParamRequestID {
			continue
		}
		params[k] = v
	}

	setString := func(key, v string) {
		if v != "" {
			params[key] = v
		}
	}
	setInt := func(key string, v int) {
		if v > 0 {
			params[key] = v
		}
	}

	setString(ParamAspectRatio, opts.AspectRatio)
	setString(ParamResolution, opts.Resolution)
	setString(ParamImageSize, opts.ImageSize)
	setString(ParamNegativePrompt, opts.NegativePrompt)
	setInt(ParamDuration, opts.Duration)
	setInt(ParamNumImages, opts.NumImages)
	if opts.Seed != nil {
		params[ParamSeed] = *opts.Seed
	}
	return params
}
