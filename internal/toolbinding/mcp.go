package toolbinding

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPDialer opens Model Context Protocol sessions over the streamable HTTP transport.
type MCPDialer struct {
	client      *mcp.Client
	httpClient  *http.Client
	callTimeout time.Duration
}

// MCPOption configures an MCPDialer.
type MCPOption func(*MCPDialer)

// WithHTTPClient sets the HTTP client used by the transport.
func WithHTTPClient(c *http.Client) MCPOption {
	return func(d *MCPDialer) {
		d.httpClient = c
	}
}

// WithCallTimeout bounds each tool call. Zero disables the bound.
func WithCallTimeout(timeout time.Duration) MCPOption {
	return func(d *MCPDialer) {
		d.callTimeout = timeout
	}
}

// NewMCPDialer creates a dialer identifying itself as name/version.
func NewMCPDialer(name, version string, opts ...MCPOption) *MCPDialer {
	d := &MCPDialer{
		client:      mcp.NewClient(&mcp.Implementation{Name: name, Version: version}, nil),
		httpClient:  http.DefaultClient,
		callTimeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dial connects to endpointURL and performs the protocol handshake.
func (d *MCPDialer) Dial(ctx context.Context, endpointURL string) (Session, error) {
	transport := &mcp.StreamableClientTransport{
		Endpoint:   endpointURL,
		HTTPClient: d.httpClient,
	}
	cs, err := d.client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, err
	}
	return &mcpSession{cs: cs, callTimeout: d.callTimeout}, nil
}

// Compile-time check that MCPDialer implements Dialer.
var _ Dialer = (*MCPDialer)(nil)

type mcpSession struct {
	cs          *mcp.ClientSession
	callTimeout time.Duration
}

func (s *mcpSession) ListTools(ctx context.Context) ([]string, error) {
	var names []string
	params := &mcp.ListToolsParams{}
	for {
		res, err := s.cs.ListTools(ctx, params)
		if err != nil {
			return nil, err
		}
		for _, tool := range res.Tools {
			names = append(names, tool.Name)
		}
		if res.NextCursor == "" {
			return names, nil
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}
}

func (s *mcpSession) CallTool(ctx context.Context, name string, args map[string]any) (Response, error) {
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}

	res, err := s.cs.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return Response{}, err
	}
	return convertResult(res), nil
}

func (s *mcpSession) Close() error {
	return s.cs.Close()
}

// convertResult maps MCP content onto protocol-neutral blocks. Structured
// content is appended as a JSON text block so decoders can read it.
func convertResult(res *mcp.CallToolResult) Response {
	resp := Response{IsError: res.IsError}
	for _, c := range res.Content {
		if b, ok := convertContent(c); ok {
			resp.Blocks = append(resp.Blocks, b)
		}
	}
	if res.StructuredContent != nil {
		if raw, err := json.Marshal(res.StructuredContent); err == nil {
			resp.Blocks = append(resp.Blocks, Block{Type: BlockText, Text: string(raw)})
		}
	}
	return resp
}

func convertContent(c mcp.Content) (Block, bool) {
	switch v := c.(type) {
	case *mcp.TextContent:
		return Block{Type: BlockText, Text: v.Text}, true
	case *mcp.ImageContent:
		return Block{Type: BlockImage, Data: v.Data, MIMEType: v.MIMEType}, true
	case *mcp.AudioContent:
		return Block{Type: BlockAudio, Data: v.Data, MIMEType: v.MIMEType}, true
	case *mcp.ResourceLink:
		return Block{Type: BlockText, Text: v.URI}, true
	case *mcp.EmbeddedResource:
		if v.Resource == nil {
			return Block{}, false
		}
		r := v.Resource
		if len(r.Blob) > 0 {
			mt := strings.ToLower(r.MIMEType)
			switch {
			case strings.HasPrefix(mt, "video/"):
				return Block{Type: BlockVideo, Data: r.Blob, MIMEType: r.MIMEType}, true
			case strings.HasPrefix(mt, "image/"):
				return Block{Type: BlockImage, Data: r.Blob, MIMEType: r.MIMEType}, true
			}
		}
		if r.Text != "" {
			return Block{Type: BlockText, Text: r.Text}, true
		}
		if r.URI != "" {
			return Block{Type: BlockText, Text: r.URI}, true
		}
		return Block{}, false
	default:
		return Block{}, false
	}
}
