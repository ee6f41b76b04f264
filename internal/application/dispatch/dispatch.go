package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/modelrelay/relay/internal/domain/canonical"
	"github.com/modelrelay/relay/internal/domain/dialect"
	"github.com/modelrelay/relay/internal/infrastructure/cooldown"
	"github.com/modelrelay/relay/internal/infrastructure/credential"
	"github.com/modelrelay/relay/internal/infrastructure/router"
	"github.com/modelrelay/relay/internal/infrastructure/signature"
	"github.com/modelrelay/relay/internal/infrastructure/streamproc"
	"github.com/modelrelay/relay/internal/infrastructure/telemetry"
	apperrors "github.com/modelrelay/relay/pkg/errors"
)

// MaxAttempts is the default cap on upstream attempts per request.
const MaxAttempts = 5

// ProxyOptions configures one Dispatch call.
type ProxyOptions struct {
	// SourceFormat is the client's wire dialect. Empty means "detect from
	// rawBody".
	SourceFormat dialect.Name
	// TargetProvider, if set, is used verbatim instead of being inferred.
	TargetProvider string
	// TargetModel, if set, is used verbatim instead of
	// consulting ModelMappings/Router.
	TargetModel string
	// APIKey, if set, is used to build upstream auth headers directly
	// instead of consulting the credential pool.
	APIKey string
	// ModelMappings are applied first-match-wins: "model:provider" syntax,
	// last ':' is the separator. Requested model -> mapping string.
	ModelMappings map[string]string
	// RouteDefaultProvider is the route's own fallback provider (e.g.
	// "openai" for /v1/chat/completions), used only when nothing more
	// specific resolves a target. Unlike TargetProvider this is never
	// treated as an explicit client override.
	RouteDefaultProvider string
}

// Engine is the request dispatch engine. One Engine is shared across
// all requests; per-request state lives entirely on the stack of Dispatch.
type Engine struct {
	Router    *router.Router
	Creds     *credential.Pool
	Cooldown  *cooldown.Manager
	Sigs      signature.Store
	Client    *http.Client
	Endpoints map[string]string
	// AntigravityFallbacks is the endpoint rotation list: after a 5xx or
	// network error on an antigravity target, the next retry attempt is
	// sent to the next base in it.
	AntigravityFallbacks []string
	Logger               *zap.Logger
	Now                  func() time.Time
	MaxAttempts          int
	// Tracer instruments one span per Dispatch call; defaults to a no-op tracer so tracing costs nothing unless
	// wired to a real provider via telemetry.NewProvider.
	Tracer trace.Tracer
}

// NewEngine builds an Engine, filling defaults for any nil/zero field.
func NewEngine(r *router.Router, creds *credential.Pool, cd *cooldown.Manager, sigs signature.Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		Router:               r,
		Creds:                creds,
		Cooldown:             cd,
		Sigs:                 sigs,
		Client:               &http.Client{Timeout: 0},
		Endpoints:            DefaultEndpoints,
		AntigravityFallbacks: DefaultAntigravityFallbacks,
		Logger:               logger,
		Now:                  time.Now,
		MaxAttempts:          MaxAttempts,
		Tracer:               telemetry.NewTracer(false),
	}
}

// target is the resolved (provider, model) an attempt is sent to.
type target struct {
	provider string
	model    string
}

// Dispatch runs one client request end to end: detect -> parse -> resolve
// -> retry/fallback loop -> response or stream translation, writing the
// result directly to w. A non-nil error means nothing has been written to
// w yet and the caller should render it as an HTTP error response; once
// Dispatch has begun writing (buffered body or stream headers), it always
// returns nil and any further failure is surfaced in-band.
func (e *Engine) Dispatch(ctx context.Context, rawBody []byte, opts ProxyOptions, w http.ResponseWriter) (dispatchErr error) {
	tracer := e.Tracer
	if tracer == nil {
		tracer = telemetry.NewTracer(false)
	}
	ctx, span := telemetry.StartDispatch(ctx, tracer, string(opts.SourceFormat))
	defer func() { telemetry.End(span, dispatchErr) }()

	sourceFormat := opts.SourceFormat
	if sourceFormat == "" {
		name, err := dialect.Detect(rawBody)
		if err != nil {
			return apperrors.InvalidRequest(err.Error())
		}
		sourceFormat = name
	}

	src, err := dialect.Get(sourceFormat)
	if err != nil {
		return apperrors.InvalidRequest(err.Error())
	}

	req, err := src.ParseRequest(rawBody)
	if err != nil {
		return apperrors.InvalidRequest(err.Error())
	}

	tgt := e.resolveTarget(req, opts)
	sessionID := ""
	requestedModel := ""
	if req.Metadata != nil {
		sessionID = req.Metadata.SessionID
		requestedModel = req.Metadata.Model
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.Multiplier = 2
	bo.MaxInterval = 16 * time.Second
	bo.RandomizationFactor = 0

	lastFamily := signature.ModelFamily(tgt.model)
	unavailableCreds := map[string]bool{}

	var resp *http.Response
	attempt := 1
	maxAttempts := e.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = MaxAttempts
	}

	for {
		telemetry.RecordAttempt(span, attempt, tgt.provider, tgt.model)
		dstT, err := dialect.Get(dialect.Name(tgt.provider))
		if err != nil {
			// Unregistered provider name (e.g. a credential-only alias):
			// fall back to openai wire shape, matching inferProvider's
			// own default.
			dstT, err = dialect.Get(dialect.OpenAI)
			if err != nil {
				return apperrors.Internal("no transformer registered", err)
			}
		}

		body, err := dstT.EmitRequest(req, tgt.model)
		if err != nil {
			return apperrors.InvalidRequest(err.Error())
		}
		family := signature.ModelFamily(tgt.model)
		if family != lastFamily {
			body = stripSignatureFields(body)
		}
		lastFamily = family

		httpResp, networkErr := e.sendAttempt(ctx, tgt, opts, body, unavailableCreds)
		if networkErr != nil {
			if appErr, ok := networkErr.(*apperrors.AppError); ok {
				// Credential/auth failures are not transient: surface
				// immediately rather than burning retry attempts.
				return appErr
			}
			if tgt.provider == "antigravity" {
				e.rotateAntigravityEndpoint()
			}
			if attempt >= maxAttempts {
				return apperrors.Network(networkErr)
			}
			if !e.sleep(ctx, bo.NextBackOff()) {
				return apperrors.Network(ctx.Err())
			}
			attempt++
			continue
		}

		if httpResp.StatusCode == http.StatusTooManyRequests {
			raw, _ := io.ReadAll(httpResp.Body)
			httpResp.Body.Close()
			retryAfter := cooldown.ExtractRetryAfter(httpResp.Header, raw, e.Now())
			if e.Router != nil {
				// HandleRateLimit indexes by the client-requested model name
				// (the ModelMapping key), not the already-resolved upstream
				// model, so the cooldown key matches what ResolveModel and
				// allCandidatesCooledDown check next.
				e.Router.HandleRateLimit(requestedModel, retryAfter)
			}

			if fb, ok := e.nextFallback(req, opts, tgt); ok {
				tgt = fb
				attempt++
				continue
			}

			if e.allCandidatesCooledDown(req, opts, tgt) {
				return apperrors.RateLimitExhausted()
			}

			if attempt >= maxAttempts {
				return apperrors.RateLimitExhausted()
			}

			if !e.sleep(ctx, bo.NextBackOff()) {
				return apperrors.Network(ctx.Err())
			}
			attempt++
			continue
		}

		if httpResp.StatusCode >= 500 {
			httpResp.Body.Close()
			if tgt.provider == "antigravity" {
				e.rotateAntigravityEndpoint()
			}
			if attempt >= maxAttempts {
				return apperrors.UpstreamError(httpResp.StatusCode, "upstream server error")
			}
			if !e.sleep(ctx, bo.NextBackOff()) {
				return apperrors.Network(ctx.Err())
			}
			attempt++
			continue
		}

		if httpResp.StatusCode >= 400 {
			// Non-429 4xx: pass the body through unchanged, no retry.
			raw, _ := io.ReadAll(httpResp.Body)
			httpResp.Body.Close()
			return e.passthroughError(httpResp.StatusCode, raw, w)
		}

		resp = httpResp
		break
	}
	defer resp.Body.Close()

	dstT, err := dialect.Get(dialect.Name(tgt.provider))
	if err != nil {
		dstT, _ = dialect.Get(dialect.OpenAI)
	}

	contentType := resp.Header.Get("Content-Type")
	clientWantsStream := req.Config != nil && req.Config.Stream

	if strings.Contains(contentType, "text/event-stream") {
		if clientWantsStream {
			return e.streamResponse(resp.Body, dstT, src, sessionID, tgt.model, w)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperrors.Network(err)
		}
		canonResp, err := streamproc.Accumulate(body, dstT)
		if err != nil {
			return apperrors.Internal("accumulate stream", err)
		}
		e.observeThinkingSignatures(canonResp, sessionID, tgt.model)
		return e.writeBufferedResponse(canonResp, src, w)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Network(err)
	}
	canonResp, err := dstT.ParseResponse(body)
	if err != nil {
		return apperrors.UpstreamNonJSON(err.Error())
	}
	e.observeThinkingSignatures(canonResp, sessionID, tgt.model)
	return e.writeBufferedResponse(canonResp, src, w)
}

// resolveTarget determines the effective (provider, model) for this
// attempt: explicit option, then ModelMappings, then the router, then the
// provider-name heuristic.
func (e *Engine) resolveTarget(req *canonical.Request, opts ProxyOptions) target {
	if opts.TargetModel != "" {
		provider := opts.TargetProvider
		if provider == "" {
			provider = router.InferProvider(opts.TargetModel)
		}
		return target{provider: provider, model: opts.TargetModel}
	}

	requested := ""
	if req.Metadata != nil {
		requested = req.Metadata.Model
	}

	if mapping, ok := opts.ModelMappings[requested]; ok {
		provider, model := splitModelMapping(mapping)
		if provider == "" {
			provider = opts.TargetProvider
		}
		if provider == "" {
			provider = router.InferProvider(model)
		}
		return target{provider: provider, model: model}
	}

	// An explicit X-Target-Provider header always wins over router-based
	// inference: the caller asked for a specific provider by name.
	if opts.TargetProvider != "" {
		return target{provider: opts.TargetProvider, model: requested}
	}

	if e.Router != nil {
		t := e.Router.ResolveModel(requested)
		return target{provider: t.Provider, model: t.Model}
	}

	provider := opts.RouteDefaultProvider
	if provider == "" {
		provider = router.InferProvider(requested)
	}
	return target{provider: provider, model: requested}
}

// splitModelMapping parses the "model:provider" syntax, splitting on the
// LAST ':' so model names may themselves contain ':'.
func splitModelMapping(mapping string) (provider, model string) {
	idx := strings.LastIndex(mapping, ":")
	if idx < 0 {
		return "", mapping
	}
	return mapping[idx+1:], mapping[:idx]
}

// nextFallback looks up the router's mapping for the requested model (if
// any) and returns the next mapped fallback target not yet cooled down,
// skipping the currently-failing target itself.
func (e *Engine) nextFallback(req *canonical.Request, opts ProxyOptions, current target) (target, bool) {
	if opts.TargetModel != "" || opts.TargetProvider != "" || e.Router == nil {
		return target{}, false
	}
	requested := ""
	if req.Metadata != nil {
		requested = req.Metadata.Model
	}
	resolved := e.Router.ResolveModel(requested)
	fb := target{provider: resolved.Provider, model: resolved.Model}
	if fb == current {
		return target{}, false
	}
	return fb, true
}

// allCandidatesCooledDown reports whether the current target's key (and
// any mapped fallbacks) are all cooled down.
func (e *Engine) allCandidatesCooledDown(req *canonical.Request, opts ProxyOptions, current target) bool {
	if e.Cooldown == nil {
		return false
	}
	if e.Cooldown.IsAvailable(cooldown.Key(current.provider, current.model)) {
		return false
	}
	if fb, ok := e.nextFallback(req, opts, current); ok {
		return !e.Cooldown.IsAvailable(cooldown.Key(fb.provider, fb.model))
	}
	return true
}

func (e *Engine) rotateAntigravityEndpoint() {
	current := e.Endpoints["antigravity"]
	for range e.AntigravityFallbacks {
		next := e.AntigravityFallbacks[0]
		e.AntigravityFallbacks = append(e.AntigravityFallbacks[1:], next)
		if next != current {
			e.Endpoints["antigravity"] = next
			return
		}
	}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// sendAttempt builds and sends one upstream HTTP request for the given
// target and body, selecting credentials or an explicit API key.
func (e *Engine) sendAttempt(ctx context.Context, tgt target, opts ProxyOptions, body json.RawMessage, unavailable map[string]bool) (*http.Response, error) {
	endpoint := e.Endpoints[tgt.provider]
	if endpoint == "" {
		endpoint = DefaultEndpoints[tgt.provider]
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if opts.APIKey != "" {
		for k, vs := range credential.BuildHeaders(tgt.provider, credential.Credential{Key: opts.APIKey}) {
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}
	} else if e.Creds != nil {
		creds, err := e.Creds.EnsureFresh(ctx, tgt.provider)
		if err != nil {
			return nil, err
		}
		if len(creds) == 0 {
			return nil, apperrors.AuthMissing(tgt.provider)
		}
		idx := e.Creds.GetNextAvailable(tgt.provider, creds, unavailable)
		if idx < 0 {
			return nil, apperrors.AuthMissing(tgt.provider)
		}
		for k, vs := range credential.BuildHeaders(tgt.provider, creds[idx]) {
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}
	}

	return e.Client.Do(httpReq)
}

// passthroughError writes an upstream non-429 error body through unchanged
// but with a normalized Content-Type.
func (e *Engine) passthroughError(status int, raw []byte, w http.ResponseWriter) error {
	var probe json.RawMessage
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if json.Unmarshal(raw, &probe) == nil {
		w.Write(raw)
		return nil
	}
	wrapped, _ := json.Marshal(map[string]interface{}{"error": string(raw)})
	w.Write(wrapped)
	return nil
}

// observeThinkingSignatures stores every signature-bearing thinking block
// of a buffered response into the signature cache, keyed by
// (sessionID, model, textHash) exactly as the streaming path does.
func (e *Engine) observeThinkingSignatures(resp *canonical.Response, sessionID, model string) {
	if e.Sigs == nil || sessionID == "" {
		return
	}
	for _, t := range resp.Thinking {
		if t.Signature == "" {
			continue
		}
		key := signature.Key{SessionID: sessionID, Model: model, TextHash: signature.TextHash(t.Text)}
		_ = e.Sigs.Save(context.Background(), key, t.Signature, signature.ModelFamily(model), e.Now().UnixMilli())
	}
}

func (e *Engine) writeBufferedResponse(resp *canonical.Response, src dialect.Transformer, w http.ResponseWriter) error {
	out, err := src.EmitResponse(resp)
	if err != nil {
		return apperrors.Internal("emit client response", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, werr := w.Write(out)
	return werr
}

// streamResponse pipes the upstream SSE body through the stream processor, translating each
// event from the upstream dialect into the client dialect as it arrives.
func (e *Engine) streamResponse(upstream io.Reader, from, to dialect.Transformer, sessionID, model string, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	fw := &flushWriter{w: w, f: flusher}

	var sink streamproc.SignatureSink
	if e.Sigs != nil && sessionID != "" {
		sink = streamproc.NewSignatureSink(context.Background(), e.Sigs, sessionID, model, e.Now().UnixMilli())
	}

	proc := streamproc.New(from, to, sink)
	if _, err := proc.Run(upstream, fw); err != nil {
		// Headers are already out; the failure can only be surfaced
		// in-band as an SSE error frame.
		if frames, emitErr := to.EmitStreamChunk(&canonical.StreamChunk{Type: canonical.ChunkError, Error: err.Error()}); emitErr == nil {
			for _, f := range frames {
				fw.Write(f)
			}
		}
		if e.Logger != nil {
			e.Logger.Warn("stream transform aborted", zap.Error(err))
		}
	}
	return nil
}

// flushWriter flushes the underlying ResponseWriter after every write so
// the stream transform's back-pressure reaches the client socket instead
// of buffering in an intermediate layer.
type flushWriter struct {
	w io.Writer
	f http.Flusher
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if fw.f != nil {
		fw.f.Flush()
	}
	return n, err
}
