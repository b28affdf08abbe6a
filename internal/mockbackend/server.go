// Package mockbackend provides a scriptable OpenAI-compatible chat
// completions server for tests and local development.
package mockbackend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	loremgen "github.com/bozaro/golorem"
)

// CompletionsPath is the path the proxy posts chat requests to.
const CompletionsPath = "/chat/completions"

// Response defines a scripted response for one path.
type Response struct {
	StatusCode   int
	Body         interface{}
	Delay        time.Duration
	Headers      map[string]string
	StreamChunks []string // data payloads, written as "data: <chunk>"

	// OmitDone suppresses the trailing "data: [DONE]" line.
	OmitDone bool
	// Hang keeps a stream open after the chunks until the client goes away.
	Hang bool
}

// RecordedRequest is a request the backend received.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// Backend is an http.Handler that answers chat completion requests.
// Paths without a scripted response fall back to lorem ipsum generation.
type Backend struct {
	mu         sync.Mutex
	responses  map[string]Response
	sequences  map[string][]Response
	requests   []RecordedRequest
	generator  *loremgen.Lorem
	chunkDelay time.Duration
	model      string
}

// New creates a backend.
func New() *Backend {
	return &Backend{
		responses: make(map[string]Response),
		sequences: make(map[string][]Response),
		generator: loremgen.New(),
		model:     "mock-model",
	}
}

// SetChunkDelay sets the pause between generated stream chunks.
func (b *Backend) SetChunkDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunkDelay = d
}

// SetResponse sets the response for every request to path.
func (b *Backend) SetResponse(path string, response Response) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses[path] = response
}

// SetSequence queues responses for path. Each request consumes one; once
// the queue is empty the response set with SetResponse (or the generator)
// applies.
func (b *Backend) SetSequence(path string, responses ...Response) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sequences[path] = append([]Response(nil), responses...)
}

// RequestCount returns the number of requests received.
func (b *Backend) RequestCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// Requests returns a copy of all received requests.
func (b *Backend) Requests() []RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]RecordedRequest(nil), b.requests...)
}

// LastRequest returns the most recent request.
func (b *Backend) LastRequest() (RecordedRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		return RecordedRequest{}, false
	}
	return b.requests[len(b.requests)-1], true
}

// Reset clears recorded requests and scripted responses.
func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = nil
	b.responses = make(map[string]Response)
	b.sequences = make(map[string][]Response)
}

// ServeHTTP implements http.Handler.
func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	b.mu.Lock()
	b.requests = append(b.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	})
	response, ok := b.next(r.URL.Path)
	b.mu.Unlock()

	if !ok {
		b.generate(w, r, body)
		return
	}

	if response.Delay > 0 {
		select {
		case <-time.After(response.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}

	if len(response.StreamChunks) > 0 || response.Hang {
		b.writeStream(w, r, response)
		return
	}

	status := response.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	if response.Body != nil {
		if _, isString := response.Body.(string); !isString {
			w.Header().Set("Content-Type", "application/json")
		}
	}
	w.WriteHeader(status)

	switch v := response.Body.(type) {
	case nil:
	case string:
		_, _ = w.Write([]byte(v))
	case []byte:
		_, _ = w.Write(v)
	default:
		_ = json.NewEncoder(w).Encode(v)
	}
}

// next pops a queued response or returns the fixed one. Caller holds mu.
func (b *Backend) next(path string) (Response, bool) {
	if queue := b.sequences[path]; len(queue) > 0 {
		b.sequences[path] = queue[1:]
		return queue[0], true
	}
	response, ok := b.responses[path]
	return response, ok
}

// writeStream writes Server-Sent Events.
func (b *Backend) writeStream(w http.ResponseWriter, r *http.Request, response Response) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	if response.StatusCode != 0 {
		w.WriteHeader(response.StatusCode)
	}

	for _, chunk := range response.StreamChunks {
		if r.Context().Err() != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		flusher.Flush()
	}

	if response.Hang {
		<-r.Context().Done()
		return
	}
	if !response.OmitDone {
		fmt.Fprintf(w, "data: [DONE]\n\n")
		flusher.Flush()
	}
}

// generate answers GET /models and chat completion requests with lorem text.
func (b *Backend) generate(w http.ResponseWriter, r *http.Request, body []byte) {
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/models"):
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   []map[string]interface{}{{"id": b.model, "object": "model"}},
		})
		return
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, CompletionsPath):
	default:
		http.NotFound(w, r)
		return
	}

	var req struct {
		Model     string `json:"model"`
		Stream    bool   `json:"stream"`
		MaxTokens int    `json:"max_tokens"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(ErrorBody("invalid JSON body", "invalid_request_error"))
		return
	}
	if req.Model == "" {
		req.Model = b.model
	}

	b.mu.Lock()
	text := b.generator.Paragraph(2, 4)
	delay := b.chunkDelay
	b.mu.Unlock()

	words := strings.Fields(text)
	if req.MaxTokens > 0 && len(words) > req.MaxTokens {
		words = words[:req.MaxTokens]
	}

	if !req.Stream {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(CompletionBody(strings.Join(words, " "), req.Model))
		return
	}

	chunks := make([]string, 0, len(words)+2)
	for i, word := range words {
		if i > 0 {
			word = " " + word
		}
		chunks = append(chunks, TextChunk(word))
	}
	chunks = append(chunks, FinishChunk("stop"), UsageChunk(10, len(words)))

	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, chunk := range chunks {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprintf(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

// Server runs a Backend on a local httptest server.
type Server struct {
	*Backend
	server *httptest.Server
}

// NewServer starts a backend on a loopback port.
func NewServer() *Server {
	b := New()
	return &Server{Backend: b, server: httptest.NewServer(b)}
}

// URL returns the server's base URL.
func (s *Server) URL() string {
	return s.server.URL
}

// Close shuts the server down.
func (s *Server) Close() {
	s.server.CloseClientConnections()
	s.server.Close()
}
