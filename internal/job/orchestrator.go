package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maauso/mediagen-api/internal/decoder"
	"github.com/maauso/mediagen-api/internal/fetcher"
	"github.com/maauso/mediagen-api/internal/media"
	"github.com/maauso/mediagen-api/internal/progress"
	"github.com/maauso/mediagen-api/internal/prompt"
	"github.com/maauso/mediagen-api/internal/registry"
	"github.com/maauso/mediagen-api/internal/storage"
	"github.com/maauso/mediagen-api/internal/toolbinding"
)

// DefaultMaxOuterRetries bounds the resubmissions of one job.
const DefaultMaxOuterRetries = 2

// richnessClauses is appended to a video prompt whose output was rejected
// as too small.
const richnessClauses = ", highly detailed scene with rich textures and fine surface detail" +
	", dynamic cinematic lighting with vivid saturated colors" +
	", smooth continuous camera movement through a deep layered background" +
	", natural motion of every element throughout the whole clip"

// ServiceResolver looks up generation services.
type ServiceResolver interface {
	Resolve(id string) (registry.Service, error)
	DefaultFor(kind media.Kind) (registry.Service, error)
}

// ToolOpener opens a tool session to a service endpoint.
type ToolOpener interface {
	Open(ctx context.Context, serviceID, endpointURL string) (*toolbinding.Binding, error)
	// Forget drops cached tool discovery so the next Open lists tools again.
	Forget(serviceID, endpointURL string)
}

// MediaFetcher downloads remote media to a local path.
type MediaFetcher interface {
	Fetch(ctx context.Context, url, destPath string, kind media.Kind) fetcher.Outcome
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Orchestrator drives jobs from submission to a terminal state.
// It is safe for concurrent use; each job runs on the caller's goroutine.
type Orchestrator struct {
	services ServiceResolver
	tools    ToolOpener
	fetcher  MediaFetcher
	storage  storage.Storage
	reporter progress.Reporter
	logger   *slog.Logger

	sleep           Sleeper
	now             func() time.Time
	maxOuterRetries int
	profiles        map[media.Kind]Profile
	transform       prompt.Transform
	tracker         *Tracker
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSleeper replaces the wait between status checks.
func WithSleeper(s Sleeper) Option {
	return func(o *Orchestrator) {
		o.sleep = s
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithMaxOuterRetries sets how many times a job may be resubmitted.
func WithMaxOuterRetries(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxOuterRetries = n
		}
	}
}

// WithMaxPollAttempts sets the poll budget for kind, keeping its intervals.
func WithMaxPollAttempts(kind media.Kind, n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			p := o.profileFor(kind)
			p.MaxPollAttempts = n
			o.profiles[kind] = p
		}
	}
}

// WithPromptTransform sets the transform applied to every prompt.
func WithPromptTransform(t prompt.Transform) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.transform = t
		}
	}
}

// WithTracker registers jobs started by Generate so they can be cancelled.
func WithTracker(t *Tracker) Option {
	return func(o *Orchestrator) {
		o.tracker = t
	}
}

// NewOrchestrator creates an Orchestrator. A nil reporter discards progress.
func NewOrchestrator(
	services ServiceResolver,
	tools ToolOpener,
	mediaFetcher MediaFetcher,
	store storage.Storage,
	reporter progress.Reporter,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if reporter == nil {
		reporter = progress.Nop{}
	}
	o := &Orchestrator{
		services:        services,
		tools:           tools,
		fetcher:         mediaFetcher,
		storage:         store,
		reporter:        reporter,
		logger:          logger,
		sleep:           sleepContext,
		now:             time.Now,
		maxOuterRetries: DefaultMaxOuterRetries,
		profiles: map[media.Kind]Profile{
			media.KindImage: DefaultProfile(media.KindImage),
			media.KindVideo: DefaultProfile(media.KindVideo),
		},
		transform: prompt.Identity,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) profileFor(kind media.Kind) Profile {
	if p, ok := o.profiles[kind]; ok {
		return p
	}
	return DefaultProfile(kind)
}

// NewJob builds a job from a prompt and options, applying the prompt transform.
func (o *Orchestrator) NewJob(rawPrompt string, opts Options) (*Job, error) {
	if opts.Kind != "" && !opts.Kind.IsValid() {
		return nil, newError(KindConfiguration, fmt.Errorf("%w: %q", ErrInvalidKind, opts.Kind))
	}
	if opts.Kind == "" && opts.ServiceID == "" {
		return nil, newError(KindConfiguration, fmt.Errorf("%w: kind or service id required", ErrInvalidKind))
	}
	text := o.transform(rawPrompt)
	if strings.TrimSpace(text) == "" {
		return nil, newError(KindConfiguration, ErrEmptyPrompt)
	}
	j := New(opts.TaskID, opts.Kind, opts.ServiceID, text, BuildParameters(opts))
	j.now = o.now
	return j, nil
}

// Generate runs one generation request to completion and returns its
// result. A failed job yields a Result with Success false and the error.
func (o *Orchestrator) Generate(ctx context.Context, rawPrompt string, opts Options) (Result, error) {
	j, err := o.NewJob(rawPrompt, opts)
	if err != nil {
		if opts.TaskID != "" {
			o.reporter.Failed(opts.TaskID, err.Error(), Category(err))
		}
		return failureResult(err), err
	}

	if o.tracker != nil {
		jobCtx, release, err := o.tracker.Register(ctx, j)
		if err != nil {
			err = newError(KindConfiguration, fmt.Errorf("%w: %s", err, j.ID))
			return failureResult(err), err
		}
		defer release()
		ctx = jobCtx
	}
	if rs, ok := o.reporter.(progress.Resetter); ok {
		rs.Reset(j.ID)
	}

	if err := o.Execute(ctx, j); err != nil {
		return failureResult(err), err
	}
	return *j.Clone().Result, nil
}

func failureResult(err error) Result {
	return Result{
		Success:       false,
		Error:         err.Error(),
		ErrorCategory: Category(err),
	}
}

// Execute drives j until it reaches a terminal state. The returned error
// is the job error for FAILED and TIMED_OUT jobs.
func (o *Orchestrator) Execute(ctx context.Context, j *Job) error {
	start := o.now()
	logger := o.logger.With(slog.String("job_id", j.ID))

	svc, err := o.resolveService(j)
	if err != nil {
		return o.fail(logger, j, err)
	}
	logger = logger.With(slog.String("service_id", svc.ID), slog.String("kind", string(j.Kind)))

	for {
		logger.Info("submitting job", slog.Int("attempt", j.GetAttempt()))

		payload, err := o.runAttempt(ctx, logger, j, svc)
		if err == nil {
			result, err := o.materialize(ctx, logger, j, svc, payload, start)
			if err != nil {
				return o.fail(logger, j, err)
			}
			if err := j.Complete(result); err != nil {
				return o.fail(logger, j, newError(KindInternal, err))
			}
			logger.Info("job completed",
				slog.String("local_path", result.LocalPath),
				slog.Bool("degraded", result.Metadata.Degraded),
				slog.Int64("elapsed_ms", result.Metadata.ElapsedMs),
			)
			o.reporter.Completed(j.ID, result)
			return nil
		}

		if ctx.Err() != nil && KindOf(err) != KindCancelled {
			err = &Error{Kind: KindCancelled, Transient: TransientNone, Err: err}
		}

		if KindOf(err) == KindTimeout {
			if e := j.TimeOut(err); e != nil {
				logger.Error("cannot mark job timed out", slog.String("error", e.Error()))
			}
			logger.Warn("job timed out", slog.String("error", err.Error()))
			o.reporter.Failed(j.ID, err.Error(), Category(err))
			return err
		}

		transient := TransientOf(err)
		if transient == TransientNone {
			return o.fail(logger, j, err)
		}
		if rerr := j.Retry(o.maxOuterRetries); rerr != nil {
			logger.Warn("transient error but no retries left",
				slog.String("transient", string(transient)),
				slog.Int("attempt", j.GetAttempt()),
			)
			return o.fail(logger, j, err)
		}

		o.mutateForRetry(j, transient)
		logger.Warn("retrying job with adjusted request",
			slog.String("transient", string(transient)),
			slog.Int("attempt", j.GetAttempt()),
			slog.String("error", err.Error()),
		)
		o.reporter.Progress(j.ID, 0, "Retrying with adjusted request")
	}
}

func (o *Orchestrator) fail(logger *slog.Logger, j *Job, err error) error {
	if e := j.Fail(err); e != nil {
		logger.Error("cannot mark job failed",
			slog.String("state", string(j.GetState())),
			slog.String("error", e.Error()),
		)
	}
	logger.Error("job failed",
		slog.String("category", Category(err)),
		slog.String("error", err.Error()),
	)
	o.reporter.Failed(j.ID, err.Error(), Category(err))
	return err
}

func (o *Orchestrator) resolveService(j *Job) (registry.Service, error) {
	snapshot := j.Clone()

	var (
		svc registry.Service
		err error
	)
	if snapshot.ServiceID != "" {
		svc, err = o.services.Resolve(snapshot.ServiceID)
	} else {
		svc, err = o.services.DefaultFor(snapshot.Kind)
	}
	if err != nil {
		return svc, newError(KindConfiguration, err)
	}

	kind := snapshot.Kind
	if kind == "" {
		kind = svc.Kind
	}
	if kind != svc.Kind {
		return svc, newError(KindConfiguration,
			fmt.Errorf("%w: service %s generates %s, not %s", ErrInvalidKind, svc.ID, svc.Kind, kind))
	}
	j.Bind(svc.ID, kind)
	return svc, nil
}

func (o *Orchestrator) mutateForRetry(j *Job, transient TransientKind) {
	switch transient {
	case TransientAspectRatio:
		j.DropParameter(ParamAspectRatio)
	case TransientFileTooSmall:
		j.AppendPrompt(richnessClauses)
	}
}

// runAttempt performs submit, polling and result for one attempt and
// returns the decoded media payload. The tool session is closed before it
// returns.
func (o *Orchestrator) runAttempt(ctx context.Context, logger *slog.Logger, j *Job, svc registry.Service) (decoder.Payload, error) {
	binding, err := o.tools.Open(ctx, svc.ID, svc.EndpointURL)
	if err != nil {
		kind := KindTransport
		if errors.Is(err, toolbinding.ErrNoToolsAvailable) || errors.Is(err, toolbinding.ErrMissingTool) {
			kind = KindConfiguration
		}
		return decoder.Payload{}, newError(kind, err)
	}
	defer func() {
		if err := binding.Close(); err != nil {
			logger.Warn("failed to close tool session", slog.String("error", err.Error()))
		}
	}()

	if err := j.Submit(); err != nil {
		return decoder.Payload{}, newError(KindInternal, err)
	}
	o.reporter.Progress(j.ID, 0, "Submitting request")

	args := j.SubmitArguments()
	resp, err := binding.Invoke(ctx, binding.Tools.Submit, args)
	if err != nil {
		// The endpoint may have been redeployed with different tools.
		o.tools.Forget(svc.ID, svc.EndpointURL)
		return decoder.Payload{}, classify(KindTransport, err, j.Kind, args)
	}
	if resp.IsError {
		return decoder.Payload{}, classify(KindBackendFailed, toolError(binding.Tools.Submit, resp), j.Kind, args)
	}

	payload, err := decoder.DecodeSubmit(resp)
	if err != nil {
		return decoder.Payload{}, classify(KindProtocol, err, j.Kind, args)
	}
	if payload.Kind == decoder.PayloadDirectMedia {
		logger.Info("submit returned media directly", slog.String("mime", payload.MIMEHint))
		return payload, nil
	}

	if err := j.SetRequestID(payload.RequestID); err != nil {
		return decoder.Payload{}, newError(KindInternal, err)
	}
	if err := j.EnterPolling(); err != nil {
		return decoder.Payload{}, newError(KindInternal, err)
	}
	logger.Info("job submitted", slog.String("request_id", payload.RequestID))

	if err := o.poll(ctx, logger, j, svc, binding); err != nil {
		return decoder.Payload{}, err
	}

	requestArgs := map[string]any{ParamRequestID: j.GetRequestID()}
	resp, err = binding.Invoke(ctx, binding.Tools.Result, requestArgs)
	if err != nil {
		return decoder.Payload{}, classify(KindTransport, err, j.Kind, args)
	}
	if resp.IsError {
		text := resp.JoinedText()
		if !decoder.IsDegradedText(text) {
			return decoder.Payload{}, classify(KindBackendFailed, toolError(binding.Tools.Result, resp), j.Kind, args)
		}
		logger.Warn("result tool reported a url validation failure after completion, using placeholder",
			slog.String("text", decoder.Truncate(text, 200)),
		)
		return decoder.Payload{
			Kind:     decoder.PayloadRemoteURL,
			URL:      media.PlaceholderURL(j.Kind),
			Degraded: true,
			LastText: text,
			Strategy: "degraded_tool_error",
		}, nil
	}

	payload, err = decoder.DecodeResult(resp, j.Kind, true)
	if err != nil {
		return decoder.Payload{}, classify(KindProtocol, err, j.Kind, args)
	}
	logger.Debug("result decoded", slog.String("strategy", payload.Strategy), slog.String("url", payload.URL))
	return payload, nil
}

// poll checks the status tool until it reports COMPLETED. No wait follows
// the last check of the budget.
func (o *Orchestrator) poll(ctx context.Context, logger *slog.Logger, j *Job, svc registry.Service, binding *toolbinding.Binding) error {
	profile := o.profileFor(j.Kind)
	state := NewPollState(profile.MaxPollAttempts, o.now())
	args := map[string]any{ParamRequestID: j.GetRequestID()}
	serviceName := svc.ID + " " + svc.DisplayName

	for check := 0; check < profile.MaxPollAttempts; check++ {
		resp, err := binding.Invoke(ctx, binding.Tools.Status, args)
		if err != nil {
			return classify(KindTransport, err, j.Kind, j.SubmitArguments())
		}

		status, position := ParseStatus(resp.Texts())
		state.Observe(status, position)

		switch status {
		case StatusCompleted:
			o.reporter.Progress(j.ID, ProgressPercent(status, position, state.CheckIndex, profile.MaxPollAttempts), "Generation complete")
			return nil
		case StatusFailed:
			return newError(KindBackendFailed, fmt.Errorf("%w: %s", ErrBackendFailed, decoder.Truncate(resp.JoinedText(), 300)))
		}

		o.reporter.Progress(j.ID,
			ProgressPercent(status, position, state.CheckIndex, profile.MaxPollAttempts),
			progressMessage(status, position),
		)

		if state.ChecksRemaining <= 0 {
			break
		}

		interval := profile.NextInterval(serviceName, state, o.now())
		attrs := []any{
			slog.String("status", string(status)),
			slog.Int("check", state.CheckIndex+1),
			slog.Int("stuck_count", state.StuckCount),
			slog.Duration("interval", interval),
		}
		if position != nil {
			attrs = append(attrs, slog.Int("queue_position", *position))
		}
		logger.Debug("job not ready", attrs...)

		if err := o.sleep(ctx, interval); err != nil {
			return newError(KindCancelled, err)
		}
	}

	elapsed := o.now().Sub(state.CheckStartTime)
	return timeoutError(state.Checks(), elapsed.Minutes())
}

// materialize stores the payload media in the output directory.
func (o *Orchestrator) materialize(
	ctx context.Context,
	logger *slog.Logger,
	j *Job,
	svc registry.Service,
	payload decoder.Payload,
	start time.Time,
) (Result, error) {
	ext := media.Extension(j.Kind, payload.MIMEHint, payload.URL)
	name, path := o.storage.NewOutputPath(ext)

	meta := &Metadata{
		RequestID:   j.GetRequestID(),
		ServiceID:   svc.ID,
		ServiceName: svc.DisplayName,
		Kind:        j.Kind,
		Attempts:    j.GetAttempt() + 1,
		Degraded:    payload.Degraded,
	}

	switch payload.Kind {
	case decoder.PayloadDirectMedia:
		if err := o.storage.Write(ctx, path, bytes.NewReader(payload.Data)); err != nil {
			if ctx.Err() != nil {
				return Result{}, newError(KindCancelled, err)
			}
			return Result{}, newError(KindInternal, fmt.Errorf("job: store media: %w", err))
		}
	case decoder.PayloadRemoteURL:
		o.reporter.Progress(j.ID, 100, "Downloading result")
		out := o.fetcher.Fetch(ctx, payload.URL, path, j.Kind)
		if out.WriteErr != nil {
			return Result{}, newError(KindInternal, out.WriteErr)
		}
		if ctx.Err() != nil {
			return Result{}, newError(KindCancelled, ctx.Err())
		}
		if out.Placeholder {
			meta.Degraded = true
			logger.Warn("media replaced by placeholder",
				slog.String("url", payload.URL),
				slog.Int("attempts", out.Attempts),
			)
		}
		if !media.IsPlaceholderURL(payload.URL) {
			meta.SourceURL = payload.URL
		}
	default:
		return Result{}, newError(KindProtocol, fmt.Errorf("job: unexpected payload %s", payload.Kind))
	}

	mirrorURL, err := o.storage.Mirror(ctx, name, path)
	switch {
	case err == nil:
		meta.MirrorURL = mirrorURL
	case !errors.Is(err, storage.ErrMirrorNotConfigured):
		logger.Warn("failed to mirror media", slog.String("file", name), slog.String("error", err.Error()))
	}

	meta.ElapsedMs = o.now().Sub(start).Milliseconds()
	return Result{
		Success:   true,
		URL:       o.storage.PublicURL(name),
		LocalPath: path,
		Metadata:  meta,
	}, nil
}

func toolError(tool string, resp toolbinding.Response) error {
	return fmt.Errorf("%w: %s: %s", ErrToolError, tool, decoder.Truncate(resp.JoinedText(), 500))
}
