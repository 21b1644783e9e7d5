// Proxy handler - one vendor-native round trip through the adapter layer.
//
// FLOW:
//  1. Resolve the provider from the path and look up its registry entry
//  2. Parse the inbound body into a request adapter; apply tool-output
//     compression and (inside materialization) the image transform
//  3. Forward upstream via the entry's client; relay the response either
//     whole or chunk by chunk through a stream adapter
//  4. Record telemetry and metrics from the normalized view
package gateway

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lotbones1-code/llmbridge/internal/adapters"
	"github.com/lotbones1-code/llmbridge/internal/monitoring"
)

// proxyState carries one request's normalized accounting from handler to
// telemetry.
type proxyState struct {
	info  *monitoring.RequestInfo
	event monitoring.RequestEvent
}

func (g *Gateway) handleProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	providerName, rest := splitProviderPath(r.URL.Path)
	entry, ok := adapters.Lookup(providerName)
	if !ok {
		g.writeError(w, "unknown provider: "+providerName, http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		g.writeError(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	requestID := monitoring.RequestIDFromContext(r.Context())
	info := monitoring.NewRequestInfo(r, requestID, len(body))
	info.Provider = providerName

	st := &proxyState{
		info: info,
		event: monitoring.RequestEvent{
			RequestID:       requestID,
			Timestamp:       info.StartTime,
			Method:          r.Method,
			Path:            r.URL.Path,
			ClientIP:        g.getClientIP(r),
			Provider:        providerName,
			RequestBodySize: len(body),
		},
	}

	opts := adapters.RequestOptions{
		Capabilities:  g.capabilities,
		MaxImageChars: g.cfg.Transform.MaxImageChars,
		Tokenizer:     g.tokenizer,
		Prices:        g.prices,
	}
	if entry.Provider == adapters.ProviderGemini {
		model, streaming := parseGeminiPath(rest)
		opts.Model = model
		opts.Streaming = &streaming
	}

	req, err := entry.NewRequest(body, opts)
	if err != nil {
		g.finish(st, http.StatusBadRequest, err.Error())
		g.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	info.Model = req.Model()
	info.Streaming = req.IsStreaming()
	st.event.Model = req.Model()
	st.event.Streaming = req.IsStreaming()

	if g.cfg.Transform.ToonEnabled {
		g.compressToolOutputs(r, req, st)
	}

	client := g.newClient(entry, r)
	g.requestLogger.LogUpstream(info, g.baseURL(entry))

	if req.IsStreaming() {
		g.relayStream(w, r, entry, client, req, st)
		return
	}

	upstreamStart := time.Now()
	respBody, err := entry.Execute(r.Context(), client, req)
	st.event.UpstreamMs = time.Since(upstreamStart).Milliseconds()
	g.metrics.RecordUpstream(providerName, time.Since(upstreamStart).Seconds())
	g.noteTransform(req, st)

	if err != nil {
		g.finish(st, http.StatusBadGateway, err.Error())
		g.writeError(w, err.Error(), http.StatusBadGateway)
		return
	}

	if resp, respErr := entry.NewResponse(respBody); respErr == nil {
		usage := resp.Usage()
		st.event.InputTokens = usage.InputTokens
		st.event.OutputTokens = usage.OutputTokens
		st.event.TotalTokens = usage.InputTokens + usage.OutputTokens
	}

	st.event.ResponseBodySize = len(respBody)
	w.Header().Set("Content-Type", "application/json")
	w.Write(respBody)
	g.requestLogger.LogResponse(info, http.StatusOK, len(respBody))
	g.finish(st, http.StatusOK, "")
}

// relayStream forwards upstream events one by one, re-framed in the vendor's
// own wire format. Client disconnect cancels the upstream call via the
// request context.
func (g *Gateway) relayStream(w http.ResponseWriter, r *http.Request, entry *adapters.Entry, client *adapters.Client, req adapters.RequestAdapter, st *proxyState) {
	upstreamStart := time.Now()
	reader, err := entry.ExecuteStream(r.Context(), client, req)
	g.noteTransform(req, st)
	if err != nil {
		st.event.UpstreamMs = time.Since(upstreamStart).Milliseconds()
		g.finish(st, http.StatusBadGateway, err.Error())
		g.writeError(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer reader.Close()

	stream := entry.NewStream()

	w.Header().Set("Content-Type", entry.StreamContentType())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)

	chunks := 0
	for {
		chunk, nextErr := reader.Next()
		if nextErr != nil {
			if !errors.Is(nextErr, io.EOF) {
				log.Warn().Err(nextErr).Str("provider", string(entry.Provider)).Msg("stream read failed")
			}
			break
		}

		frame, procErr := stream.ProcessChunk(chunk)
		if procErr != nil {
			log.Warn().Err(procErr).Str("provider", string(entry.Provider)).Msg("stream chunk rejected")
			continue
		}
		if _, writeErr := w.Write(frame); writeErr != nil {
			break
		}
		if flusher != nil {
			flusher.Flush()
		}
		chunks++
	}

	if stream.IsComplete() {
		if term := entry.StreamTerminator(); len(term) > 0 {
			w.Write(term)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}

	st.event.UpstreamMs = time.Since(upstreamStart).Milliseconds()
	st.event.StreamChunks = chunks
	g.metrics.RecordUpstream(string(entry.Provider), time.Since(upstreamStart).Seconds())
	g.metrics.RecordStreamChunks(string(entry.Provider), chunks)

	usage := stream.State().UsageOrZero()
	st.event.InputTokens = usage.InputTokens
	st.event.OutputTokens = usage.OutputTokens
	st.event.TotalTokens = usage.InputTokens + usage.OutputTokens

	g.requestLogger.LogStreamDone(st.info, chunks, stream.IsComplete())
	g.finish(st, http.StatusOK, "")
}

// compressToolOutputs stages token-oriented re-encoding of structured tool
// results. Failures are logged and ignored: compression is an optimization,
// never a reason to fail the request.
func (g *Gateway) compressToolOutputs(r *http.Request, req adapters.RequestAdapter, st *proxyState) {
	res, err := req.ApplyToonCompression(r.Context(), req.Model())
	if err != nil {
		log.Warn().Err(err).Str("request_id", st.event.RequestID).Msg("tool output compression failed")
		return
	}
	if res == nil {
		return
	}
	st.event.ToonTokensSaved = res.TokensSaved()
	st.event.ToonCostSavings = res.CostSavings
	g.metrics.RecordToonSavings(res.TokensSaved())
}

// noteTransform pulls image-transform counts out of the materialized request.
func (g *Gateway) noteTransform(req adapters.RequestAdapter, st *proxyState) {
	stripped, omitted := req.TransformStats()
	st.event.ImagesStripped = stripped
	st.event.ImagesOmitted = omitted
	g.metrics.RecordImages(monitoring.ImageActionStripped, stripped)
	g.metrics.RecordImages(monitoring.ImageActionOmitted, omitted)
}

// finish records telemetry and request metrics.
func (g *Gateway) finish(st *proxyState, status int, errMsg string) {
	st.event.StatusCode = status
	st.event.Success = status < 400
	st.event.Error = errMsg
	st.event.TotalMs = time.Since(st.info.StartTime).Milliseconds()
	g.metrics.RecordRequest(st.event.Provider, st.event.Success)
	g.tracker.RecordRequest(st.event)
}

// newClient builds the upstream client, applying per-provider config
// overrides for base URL and API key.
func (g *Gateway) newClient(entry *adapters.Entry, r *http.Request) *adapters.Client {
	apiKey := entry.ExtractAPIKey(r.Header, r.URL.Query())
	opts := g.clientOpts

	if pc, ok := g.cfg.Providers[string(entry.Provider)]; ok {
		if pc.BaseURL != "" {
			opts.BaseURL = pc.BaseURL
		}
		if pc.APIKey != "" {
			apiKey = pc.APIKey
		}
	}
	return entry.NewClient(apiKey, opts)
}

// baseURL resolves the effective upstream base URL for logging.
func (g *Gateway) baseURL(entry *adapters.Entry) string {
	if pc, ok := g.cfg.Providers[string(entry.Provider)]; ok && pc.BaseURL != "" {
		return pc.BaseURL
	}
	return entry.BaseURL()
}

// parseGeminiPath extracts the model and streaming verb from a
// "/v1beta/models/{model}:{verb}" path remainder.
func parseGeminiPath(rest string) (model string, streaming bool) {
	idx := strings.Index(rest, "models/")
	if idx < 0 {
		return "", false
	}
	tail := rest[idx+len("models/"):]
	if colon := strings.IndexByte(tail, ':'); colon >= 0 {
		model = tail[:colon]
		verb := tail[colon+1:]
		if q := strings.IndexByte(verb, '?'); q >= 0 {
			verb = verb[:q]
		}
		streaming = verb == "streamGenerateContent"
		return model, streaming
	}
	return tail, false
}
