package toolbinding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Static errors for tool discovery.
var (
	// ErrNoToolsAvailable is returned when the endpoint advertises no tools.
	ErrNoToolsAvailable = errors.New("toolbinding: no tools available")
	// ErrMissingTool is returned when a required tool cannot be classified.
	ErrMissingTool = errors.New("toolbinding: missing tool")
	// ErrDial is returned when the endpoint cannot be reached.
	ErrDial = errors.New("toolbinding: connect failed")
)

// Tools names the three tools of the generation protocol.
type Tools struct {
	Submit string
	Status string
	Result string
}

// Classify assigns tool names to protocol roles by name substring.
// The first tool is used as submit when no name contains "submit";
// status and result have no fallback.
func Classify(names []string) (Tools, error) {
	if len(names) == 0 {
		return Tools{}, ErrNoToolsAvailable
	}

	find := func(substr string) string {
		for _, n := range names {
			if strings.Contains(strings.ToLower(n), substr) {
				return n
			}
		}
		return ""
	}

	tools := Tools{
		Submit: find("submit"),
		Status: find("status"),
		Result: find("result"),
	}
	if tools.Submit == "" {
		tools.Submit = names[0]
	}
	if tools.Status == "" {
		return Tools{}, fmt.Errorf("%w: status", ErrMissingTool)
	}
	if tools.Result == "" {
		return Tools{}, fmt.Errorf("%w: result", ErrMissingTool)
	}
	return tools, nil
}

// Binding is an open session to a service together with its classified tools.
// A Binding belongs to a single job attempt and must be closed by it.
type Binding struct {
	ServiceID    string
	EndpointURL  string
	Tools        Tools
	DiscoveredAt time.Time

	session   Session
	closeOnce sync.Once
	closeErr  error
}

// Invoke calls a tool on the bound session.
func (b *Binding) Invoke(ctx context.Context, tool string, args map[string]any) (Response, error) {
	resp, err := b.session.CallTool(ctx, tool, args)
	if err != nil {
		return Response{}, fmt.Errorf("toolbinding: call %s: %w", tool, err)
	}
	return resp, nil
}

// Close releases the session. It is safe to call more than once.
func (b *Binding) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.session.Close()
	})
	return b.closeErr
}

type cachedTools struct {
	tools        Tools
	discoveredAt time.Time
}

// Binder opens bindings and remembers each endpoint's tool classification,
// since the tool set of an endpoint does not change. Every Open still dials
// a fresh session.
type Binder struct {
	dialer Dialer
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedTools
}

// NewBinder creates a Binder over dialer.
func NewBinder(dialer Dialer, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{
		dialer: dialer,
		logger: logger,
		now:    time.Now,
		cache:  make(map[string]cachedTools),
	}
}

func cacheKey(serviceID, endpointURL string) string {
	return serviceID + "|" + endpointURL
}

// Open dials endpointURL and returns a Binding with classified tools.
// The session is closed when discovery fails.
func (b *Binder) Open(ctx context.Context, serviceID, endpointURL string) (*Binding, error) {
	session, err := b.dialer.Dial(ctx, endpointURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDial, endpointURL, err)
	}

	key := cacheKey(serviceID, endpointURL)
	b.mu.RLock()
	cached, ok := b.cache[key]
	b.mu.RUnlock()

	if !ok {
		names, err := session.ListTools(ctx)
		if err != nil {
			_ = session.Close()
			return nil, fmt.Errorf("toolbinding: list tools: %w", err)
		}

		tools, err := Classify(names)
		if err != nil {
			_ = session.Close()
			return nil, err
		}

		cached = cachedTools{tools: tools, discoveredAt: b.now()}
		b.mu.Lock()
		b.cache[key] = cached
		b.mu.Unlock()

		b.logger.Debug("tools discovered",
			slog.String("service_id", serviceID),
			slog.String("submit", tools.Submit),
			slog.String("status", tools.Status),
			slog.String("result", tools.Result),
		)
	}

	return &Binding{
		ServiceID:    serviceID,
		EndpointURL:  endpointURL,
		Tools:        cached.tools,
		DiscoveredAt: cached.discoveredAt,
		session:      session,
	}, nil
}

// Forget drops the cached classification for a service endpoint.
func (b *Binder) Forget(serviceID, endpointURL string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.cache, cacheKey(serviceID, endpointURL))
}
