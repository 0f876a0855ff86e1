// Package decoder extracts request ids and media locations from the
// loosely structured responses of generation tools. Each extraction rule is
// a Strategy; strategies are tried in a fixed order and the first match wins.
package decoder

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/maauso/mediagen-api/internal/media"
	"github.com/maauso/mediagen-api/internal/toolbinding"
)

// Static errors for response decoding.
var (
	// ErrNoRequestID is returned when a submit response carries neither media nor a request id.
	ErrNoRequestID = errors.New("decoder: no request id in submit response")
	// ErrUnresolved is returned when a result response yields no media.
	ErrUnresolved = errors.New("decoder: result payload unresolved")
)

// PayloadKind discriminates decode outcomes.
type PayloadKind int

const (
	// PayloadUnresolved means no strategy matched.
	PayloadUnresolved PayloadKind = iota
	// PayloadDirectMedia carries the media bytes inline.
	PayloadDirectMedia
	// PayloadRemoteURL points at media to download.
	PayloadRemoteURL
	// PayloadRequestID carries the backend correlation id.
	PayloadRequestID
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadDirectMedia:
		return "direct_media"
	case PayloadRemoteURL:
		return "remote_url"
	case PayloadRequestID:
		return "request_id"
	default:
		return "unresolved"
	}
}

// Payload is the outcome of decoding one response.
type Payload struct {
	Kind PayloadKind
	// Data and MIMEHint are set for PayloadDirectMedia.
	Data     []byte
	MIMEHint string
	// URL is set for PayloadRemoteURL.
	URL string
	// Degraded marks a placeholder URL substituted for a completed job
	// whose real media could not be located.
	Degraded bool
	// RequestID is set for PayloadRequestID.
	RequestID string
	// LastText is the last text block seen, kept for diagnostics.
	LastText string
	// Strategy names the rule that produced the payload.
	Strategy string
}

// Strategy is one decoding rule.
type Strategy interface {
	Name() string
	TryDecode(resp toolbinding.Response) (Payload, bool)
}

type strategyFunc struct {
	name string
	fn   func(toolbinding.Response) (Payload, bool)
}

func (s strategyFunc) Name() string { return s.name }

func (s strategyFunc) TryDecode(resp toolbinding.Response) (Payload, bool) {
	p, ok := s.fn(resp)
	if ok {
		p.Strategy = s.name
	}
	return p, ok
}

// Decode applies strategies in order and returns the first match.
func Decode(resp toolbinding.Response, strategies []Strategy) (Payload, bool) {
	for _, s := range strategies {
		if p, ok := s.TryDecode(resp); ok {
			return p, true
		}
	}
	return Payload{Kind: PayloadUnresolved, LastText: lastText(resp)}, false
}

// SubmitStrategies returns the rules for submit responses: inline media,
// then a JSON request_id, then a "Request ID:" text pattern.
func SubmitStrategies() []Strategy {
	return []Strategy{
		strategyFunc{"inline_media", inlineMedia},
		strategyFunc{"json_request_id", jsonRequestID},
		strategyFunc{"text_request_id", textRequestID},
	}
}

// ResultStrategies returns the rules for result responses of kind. The
// degraded-success rule applies only when the job was seen as completed.
func ResultStrategies(kind media.Kind, completed bool) []Strategy {
	fields := resultFieldsFor(kind)
	strategies := []Strategy{
		strategyFunc{"inline_media", inlineMedia},
		strategyFunc{"json_url_field", fields.topLevel},
		strategyFunc{"json_nested_url", fields.nested},
	}
	if fields.array != nil {
		strategies = append(strategies, strategyFunc{"json_url_array", fields.array})
	}
	strategies = append(strategies, strategyFunc{"text_media_url", textMediaURL(kind)})
	if completed {
		strategies = append(strategies, strategyFunc{"degraded_success", degradedSuccess(kind)})
	}
	return strategies
}

// DecodeSubmit decodes a submit response into direct media or a request id.
func DecodeSubmit(resp toolbinding.Response) (Payload, error) {
	p, ok := Decode(resp, SubmitStrategies())
	if !ok {
		return p, &UnresolvedError{Err: ErrNoRequestID, LastText: p.LastText}
	}
	return p, nil
}

// DecodeResult decodes a result response into direct media or a remote URL.
func DecodeResult(resp toolbinding.Response, kind media.Kind, completed bool) (Payload, error) {
	p, ok := Decode(resp, ResultStrategies(kind, completed))
	if !ok {
		return p, &UnresolvedError{Err: ErrUnresolved, LastText: p.LastText}
	}
	return p, nil
}

// UnresolvedError carries the last text block of a response that no
// strategy could decode.
type UnresolvedError struct {
	Err      error
	LastText string
}

func (e *UnresolvedError) Error() string {
	if e.LastText == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s (last text: %s)", e.Err.Error(), Truncate(e.LastText, 300))
}

func (e *UnresolvedError) Unwrap() error {
	return e.Err
}

func lastText(resp toolbinding.Response) string {
	texts := resp.Texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

// Truncate shortens s to at most n bytes plus an ellipsis, cutting on a
// rune boundary.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
