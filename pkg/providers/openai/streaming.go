package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"mercator-hq/courier/pkg/cancel"
	"mercator-hq/courier/pkg/providers"
)

// maxLineSize bounds a single SSE line. Tool call fragments can be large.
const maxLineSize = 4 << 20

// streamReader reads Server-Sent Events (SSE) from a chat completions stream.
// If a cancellation signal fires while Read is blocked, the body is closed
// so the read returns promptly.
type streamReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	sig     *cancel.Signal

	stopWatch chan struct{}
	closeOnce sync.Once
	onClose   func()

	done bool
}

// newStreamReader wraps body. onClose runs exactly once, from Close.
func newStreamReader(body io.ReadCloser, sig *cancel.Signal, onClose func()) *streamReader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	s := &streamReader{
		body:      body,
		scanner:   scanner,
		sig:       sig,
		stopWatch: make(chan struct{}),
		onClose:   onClose,
	}

	if sig != nil {
		go func() {
			select {
			case <-sig.Done():
				body.Close()
			case <-s.stopWatch:
			}
		}()
	}

	return s
}

// Read reads the next chunk from the stream.
// Returns nil, io.EOF at "data: [DONE]" or when the body ends.
func (s *streamReader) Read(ctx context.Context) (*providers.StreamChunk, error) {
	if s.done {
		return nil, io.EOF
	}

	for {
		if err := s.checkCancelled(ctx); err != nil {
			return nil, err
		}

		if !s.scanner.Scan() {
			if err := s.checkCancelled(ctx); err != nil {
				return nil, err
			}
			s.done = true
			if err := s.scanner.Err(); err != nil {
				return nil, providers.ClassifyTransportError(ctx, err)
			}
			return nil, io.EOF
		}

		line := s.scanner.Text()

		// Skip blank lines, comments, and event: lines
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			s.done = true
			return nil, io.EOF
		}

		if errObj := gjson.Get(data, "error"); errObj.Exists() && !gjson.Get(data, "choices").Exists() {
			s.done = true
			return nil, streamError(errObj)
		}

		var chunk providers.StreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			slog.WarnContext(ctx, "skipping malformed stream chunk", "error", err, "data_len", len(data))
			continue
		}
		return &chunk, nil
	}
}

// Close closes the stream and releases resources.
func (s *streamReader) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopWatch)
		err = s.body.Close()
		s.done = true
		if s.onClose != nil {
			s.onClose()
		}
	})
	return err
}

func (s *streamReader) checkCancelled(ctx context.Context) error {
	if s.sig != nil && s.sig.IsSet() {
		s.done = true
		return providers.NewCancelledError("request cancelled")
	}
	if err := ctx.Err(); err != nil {
		s.done = true
		return providers.ClassifyTransportError(ctx, err)
	}
	return nil
}

// streamError converts an in-band error object into a providers.Error.
func streamError(errObj gjson.Result) *providers.Error {
	message := errObj.Get("message").String()
	if message == "" {
		message = errObj.String()
	}
	code := errObj.Get("code").String()
	if code == "" {
		code = errObj.Get("type").String()
	}

	status := 0
	if c := errObj.Get("code"); c.Type == gjson.Number {
		status = int(c.Int())
		code = ""
	}

	return providers.NewStatusError(status, code, message)
}
