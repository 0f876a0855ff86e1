// Package toolbinding connects to a generation service's tool endpoint,
// discovers its submit/status/result tools and invokes them.
package toolbinding

import (
	"context"
	"strings"
)

// BlockType is the channel a response content block arrived on.
type BlockType string

// Content block types.
const (
	BlockText  BlockType = "text"
	BlockImage BlockType = "image"
	BlockVideo BlockType = "video"
	BlockAudio BlockType = "audio"
)

// Block is one content block of a tool response.
type Block struct {
	Type     BlockType
	Text     string // set for BlockText
	Data     []byte // raw bytes for media blocks
	MIMEType string
}

// Response is the raw result of a tool invocation.
type Response struct {
	Blocks []Block
	// IsError is set when the tool itself reported a failure.
	IsError bool
}

// Texts returns the text of every text block, in order.
func (r Response) Texts() []string {
	texts := make([]string, 0, len(r.Blocks))
	for _, b := range r.Blocks {
		if b.Type == BlockText && b.Text != "" {
			texts = append(texts, b.Text)
		}
	}
	return texts
}

// JoinedText returns all text blocks joined by newlines.
func (r Response) JoinedText() string {
	return strings.Join(r.Texts(), "\n")
}

// Session is an open connection to one tool endpoint.
type Session interface {
	// ListTools returns the names of the tools the endpoint advertises.
	ListTools(ctx context.Context) ([]string, error)
	// CallTool invokes a tool by name.
	CallTool(ctx context.Context, name string, args map[string]any) (Response, error)
	// Close releases the connection.
	Close() error
}

// Dialer opens sessions to tool endpoints.
type Dialer interface {
	Dial(ctx context.Context, endpointURL string) (Session, error)
}
