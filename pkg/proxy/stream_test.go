package proxy

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"mercator-hq/courier/pkg/providers"
	"mercator-hq/courier/pkg/proxy/types"
)

// sliceSource replays a fixed list of fragments, then returns err (io.EOF
// when nil).
type sliceSource struct {
	chunks []*providers.StreamChunk
	err    error
	reads  int
}

func (s *sliceSource) Read(ctx context.Context) (*providers.StreamChunk, error) {
	if s.reads < len(s.chunks) {
		c := s.chunks[s.reads]
		s.reads++
		return c, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

func textChunk(text string) *providers.StreamChunk {
	return &providers.StreamChunk{Choices: []providers.StreamChoice{{Delta: providers.Delta{Content: text}}}}
}

func finishChunk(reason string) *providers.StreamChunk {
	return &providers.StreamChunk{Choices: []providers.StreamChoice{{FinishReason: &reason}}}
}

func toolChunk(index int, id, name, args string) *providers.StreamChunk {
	idx := index
	return &providers.StreamChunk{Choices: []providers.StreamChoice{{Delta: providers.Delta{
		ToolCalls: []providers.ToolCall{{Index: &idx, ID: id, Function: providers.FunctionCall{Name: name, Arguments: args}}},
	}}}}
}

func usageChunk(prompt, completion int) *providers.StreamChunk {
	return &providers.StreamChunk{Usage: &providers.Usage{PromptTokens: prompt, CompletionTokens: completion}}
}

type recorder struct {
	events []types.StreamEvent
	failAt int
}

func (r *recorder) emit(ev types.StreamEvent) error {
	if r.failAt > 0 && len(r.events)+1 >= r.failAt {
		return errors.New("broken pipe")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) typeList() []string {
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) count(eventType string) int {
	n := 0
	for _, ev := range r.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

func (r *recorder) text() string {
	var sb strings.Builder
	for _, ev := range r.events {
		if d, ok := ev.Delta.(*types.BlockDelta); ok && d.Type == types.DeltaText {
			sb.WriteString(d.Text)
		}
	}
	return sb.String()
}

func (r *recorder) partialJSON(index int) string {
	var sb strings.Builder
	for _, ev := range r.events {
		if d, ok := ev.Delta.(*types.BlockDelta); ok && d.Type == types.DeltaInputJSON && *ev.Index == index {
			sb.WriteString(d.PartialJSON)
		}
	}
	return sb.String()
}

func (r *recorder) messageDelta(t *testing.T) (*types.MessageDelta, *types.DeltaUsage) {
	t.Helper()
	for _, ev := range r.events {
		if ev.Type == types.EventMessageDelta {
			return ev.Delta.(*types.MessageDelta), ev.Usage
		}
	}
	t.Fatal("no message_delta event")
	return nil, nil
}

// checkWellFormed asserts the stream grammar: message_start, ping, blocks
// that never overlap, then either message_delta + message_stop or a single
// trailing error.
func checkWellFormed(t *testing.T, events []types.StreamEvent) {
	t.Helper()
	if len(events) < 2 || events[0].Type != types.EventMessageStart || events[1].Type != types.EventPing {
		t.Fatalf("stream must open with message_start, ping: %v", events)
	}
	open := -1
	next := 0
	for i, ev := range events[2:] {
		switch ev.Type {
		case types.EventContentBlockStart:
			if open != -1 {
				t.Fatalf("event %d: block %d started while %d open", i+2, *ev.Index, open)
			}
			if *ev.Index != next {
				t.Fatalf("event %d: block index %d, want %d", i+2, *ev.Index, next)
			}
			open = *ev.Index
			next++
		case types.EventContentBlockDelta:
			if open != *ev.Index {
				t.Fatalf("event %d: delta for block %d, open is %d", i+2, *ev.Index, open)
			}
		case types.EventContentBlockStop:
			if open != *ev.Index {
				t.Fatalf("event %d: stop for block %d, open is %d", i+2, *ev.Index, open)
			}
			open = -1
		case types.EventMessageDelta:
			if open != -1 {
				t.Fatalf("message_delta with block %d open", open)
			}
		}
	}
	last := events[len(events)-1]
	if !last.IsTerminal() {
		t.Fatalf("last event = %s, want terminal", last.Type)
	}
	for _, ev := range events[:len(events)-1] {
		if ev.IsTerminal() {
			t.Fatalf("terminal event %s before end of stream", ev.Type)
		}
	}
	if last.Type == types.EventMessageStop && events[len(events)-2].Type != types.EventMessageDelta {
		t.Fatalf("message_stop not preceded by message_delta")
	}
}

func translate(t *testing.T, tr *StreamTranslator, src ChunkSource) (*recorder, StreamSummary, error) {
	t.Helper()
	rec := &recorder{}
	var summary StreamSummary
	tr.OnComplete = func(s StreamSummary) { summary = s }
	err := tr.Translate(context.Background(), src, &types.MessagesRequest{Model: "claude-3-5-sonnet"}, rec.emit)
	return rec, summary, err
}

func TestTranslate_Text(t *testing.T) {
	src := &sliceSource{chunks: []*providers.StreamChunk{
		textChunk("Hel"), textChunk("lo"), finishChunk("stop"), usageChunk(10, 2),
	}}
	rec, summary, err := translate(t, &StreamTranslator{MessageID: "msg_test", InputTokens: 7}, src)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	checkWellFormed(t, rec.events)

	want := []string{"message_start", "ping", "content_block_start", "content_block_delta", "content_block_delta", "content_block_stop", "message_delta", "message_stop"}
	if got := rec.typeList(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if rec.text() != "Hello" {
		t.Errorf("text = %q, want Hello", rec.text())
	}
	start := rec.events[0].Message
	if start.ID != "msg_test" || start.Model != "claude-3-5-sonnet" || start.Usage.InputTokens != 7 {
		t.Errorf("message_start = %+v", start)
	}
	delta, _ := rec.messageDelta(t)
	if delta.StopReason != types.StopReasonEndTurn {
		t.Errorf("stop_reason = %q, want end_turn", delta.StopReason)
	}
	if summary.Outcome != OutcomeCompleted || summary.Blocks != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestTranslate_IgnoresFragmentsAfterFinish(t *testing.T) {
	src := &sliceSource{chunks: []*providers.StreamChunk{
		textChunk("A"), finishChunk("stop"), textChunk("B"), finishChunk("length"),
	}}
	rec, summary, err := translate(t, &StreamTranslator{}, src)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	checkWellFormed(t, rec.events)

	if rec.text() != "A" {
		t.Errorf("text = %q, want A", rec.text())
	}
	if n := rec.count(types.EventMessageStop); n != 1 {
		t.Errorf("message_stop count = %d, want 1", n)
	}
	if n := rec.count(types.EventMessageDelta); n != 1 {
		t.Errorf("message_delta count = %d, want 1", n)
	}
	delta, _ := rec.messageDelta(t)
	if delta.StopReason != types.StopReasonEndTurn {
		t.Errorf("stop_reason = %q, want end_turn from the first finish", delta.StopReason)
	}
	if summary.Discarded != 2 {
		t.Errorf("Discarded = %d, want 2", summary.Discarded)
	}
	if src.reads != 4 {
		t.Errorf("source reads = %d, want the source drained", src.reads)
	}
}

func TestTranslate_ToolCallArgumentsConcatenate(t *testing.T) {
	src := &sliceSource{chunks: []*providers.StreamChunk{
		toolChunk(0, "call_1", "get_weather", ""),
		toolChunk(0, "", "", `{"loc`),
		toolChunk(0, "", "", `ation":`),
		toolChunk(0, "", "", `"Paris"}`),
		finishChunk("tool_calls"),
	}}
	rec, summary, err := translate(t, &StreamTranslator{}, src)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	checkWellFormed(t, rec.events)

	if n := rec.count(types.EventContentBlockStart); n != 1 {
		t.Errorf("content_block_start count = %d, want 1", n)
	}
	if n := rec.count(types.EventContentBlockStop); n != 1 {
		t.Errorf("content_block_stop count = %d, want 1", n)
	}
	block := rec.events[2].ContentBlock
	if block.Type != types.BlockToolUse || block.ID != "call_1" || block.Name != "get_weather" {
		t.Errorf("content_block = %+v", block)
	}
	if got := rec.partialJSON(0); got != `{"location":"Paris"}` {
		t.Errorf("partial_json = %q", got)
	}
	delta, _ := rec.messageDelta(t)
	if delta.StopReason != types.StopReasonToolUse {
		t.Errorf("stop_reason = %q, want tool_use", delta.StopReason)
	}
	if summary.ToolCalls != 1 {
		t.Errorf("ToolCalls = %d, want 1", summary.ToolCalls)
	}
}

func TestTranslate_TextThenTools(t *testing.T) {
	src := &sliceSource{chunks: []*providers.StreamChunk{
		textChunk("Let me check."),
		toolChunk(0, "call_a", "lookup", `{"q":1}`),
		toolChunk(1, "call_b", "lookup", `{"q":2}`),
		finishChunk("tool_calls"),
	}}
	rec, _, err := translate(t, &StreamTranslator{}, src)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	checkWellFormed(t, rec.events)

	if n := rec.count(types.EventContentBlockStart); n != 3 {
		t.Fatalf("content_block_start count = %d, want 3", n)
	}
	if rec.partialJSON(1) != `{"q":1}` || rec.partialJSON(2) != `{"q":2}` {
		t.Errorf("partial_json = %q / %q", rec.partialJSON(1), rec.partialJSON(2))
	}
}

func TestTranslate_LateToolFragmentNotForwarded(t *testing.T) {
	src := &sliceSource{chunks: []*providers.StreamChunk{
		toolChunk(0, "call_a", "a", `{"x":`),
		toolChunk(1, "call_b", "b", `{}`),
		toolChunk(0, "", "", `1}`),
		finishChunk("tool_calls"),
	}}
	rec, _, err := translate(t, &StreamTranslator{}, src)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	checkWellFormed(t, rec.events)

	if got := rec.partialJSON(0); got != `{"x":` {
		t.Errorf("block 0 partial_json = %q, late fragment must not be emitted", got)
	}
	if n := rec.count(types.EventContentBlockStart); n != 2 {
		t.Errorf("content_block_start count = %d, want 2", n)
	}
}

func TestTranslate_ToolIndexFallsBackToPosition(t *testing.T) {
	chunk := &providers.StreamChunk{Choices: []providers.StreamChoice{{Delta: providers.Delta{
		ToolCalls: []providers.ToolCall{
			{ID: "call_a", Function: providers.FunctionCall{Name: "a", Arguments: "{}"}},
			{ID: "call_b", Function: providers.FunctionCall{Name: "b", Arguments: "{}"}},
		},
	}}}}
	src := &sliceSource{chunks: []*providers.StreamChunk{chunk, finishChunk("tool_calls")}}
	rec, summary, err := translate(t, &StreamTranslator{}, src)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	checkWellFormed(t, rec.events)
	if summary.ToolCalls != 2 {
		t.Errorf("ToolCalls = %d, want 2", summary.ToolCalls)
	}
}

func TestTranslate_MissingToolIDGenerated(t *testing.T) {
	src := &sliceSource{chunks: []*providers.StreamChunk{toolChunk(0, "", "f", "{}"), finishChunk("tool_calls")}}
	rec, _, err := translate(t, &StreamTranslator{}, src)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if id := rec.events[2].ContentBlock.ID; !strings.HasPrefix(id, "toolu_") {
		t.Errorf("tool id = %q, want toolu_ prefix", id)
	}
}

func TestTranslate_SynthesizedEnd(t *testing.T) {
	tests := []struct {
		name       string
		chunks     []*providers.StreamChunk
		stopReason string
	}{
		{"empty stream", nil, types.StopReasonEndTurn},
		{"text only", []*providers.StreamChunk{textChunk("partial")}, types.StopReasonEndTurn},
		{"tool call", []*providers.StreamChunk{toolChunk(0, "call_1", "f", `{}`)}, types.StopReasonToolUse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, summary, err := translate(t, &StreamTranslator{}, &sliceSource{chunks: tt.chunks})
			if err != nil {
				t.Fatalf("Translate() error = %v", err)
			}
			checkWellFormed(t, rec.events)
			delta, _ := rec.messageDelta(t)
			if delta.StopReason != tt.stopReason {
				t.Errorf("stop_reason = %q, want %q", delta.StopReason, tt.stopReason)
			}
			if !summary.Synthesized {
				t.Error("Synthesized = false, want true")
			}
		})
	}
}

func TestTranslate_CancelBeforeFirstFragment(t *testing.T) {
	src := &sliceSource{chunks: []*providers.StreamChunk{textChunk("never")}}
	tr := &StreamTranslator{Canceled: func() bool { return true }}
	rec, summary, err := translate(t, tr, src)
	if !providers.IsCancelled(err) {
		t.Fatalf("Translate() error = %v, want cancelled", err)
	}
	checkWellFormed(t, rec.events)

	want := "message_start,ping,error"
	if got := strings.Join(rec.typeList(), ","); got != want {
		t.Fatalf("events = %s, want %s", got, want)
	}
	if rec.events[2].Error.Type != types.ErrorTypeCancelled {
		t.Errorf("error type = %q, want request_cancelled", rec.events[2].Error.Type)
	}
	if src.reads != 0 {
		t.Errorf("source reads = %d, want 0", src.reads)
	}
	if summary.Outcome != OutcomeCancelled {
		t.Errorf("Outcome = %q, want cancelled", summary.Outcome)
	}
}

func TestTranslate_CancelMidStream(t *testing.T) {
	src := &sliceSource{chunks: []*providers.StreamChunk{textChunk("a"), textChunk("b"), finishChunk("stop")}}
	tr := &StreamTranslator{Canceled: func() bool { return src.reads >= 1 }}
	rec, _, err := translate(t, tr, src)
	if !providers.IsCancelled(err) {
		t.Fatalf("Translate() error = %v, want cancelled", err)
	}
	checkWellFormed(t, rec.events)
	if rec.count(types.EventMessageStop) != 0 {
		t.Error("message_stop emitted after cancellation")
	}
	if last := rec.events[len(rec.events)-1]; last.Type != types.EventError {
		t.Errorf("last event = %s, want error", last.Type)
	}
}

func TestTranslate_SourceError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		errorType string
	}{
		{"transport failure", providers.NewStatusError(502, "", "bad gateway"), types.ErrorTypeAPI},
		{"cancelled", providers.NewCancelledError("client disconnected"), types.ErrorTypeCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &sliceSource{chunks: []*providers.StreamChunk{textChunk("partial")}, err: tt.err}
			rec, _, err := translate(t, &StreamTranslator{}, src)
			if err == nil {
				t.Fatal("Translate() error = nil")
			}
			checkWellFormed(t, rec.events)
			last := rec.events[len(rec.events)-1]
			if last.Type != types.EventError || last.Error.Type != tt.errorType {
				t.Errorf("last event = %+v, want error %s", last, tt.errorType)
			}
			if n := rec.count(types.EventError); n != 1 {
				t.Errorf("error events = %d, want 1", n)
			}
		})
	}
}

func TestTranslate_ErrorAfterFinishCompletes(t *testing.T) {
	src := &sliceSource{
		chunks: []*providers.StreamChunk{textChunk("done"), finishChunk("stop")},
		err:    errors.New("connection reset"),
	}
	rec, summary, err := translate(t, &StreamTranslator{}, src)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	checkWellFormed(t, rec.events)
	if rec.count(types.EventError) != 0 {
		t.Error("error event after a completed message")
	}
	if summary.Outcome != OutcomeCompleted {
		t.Errorf("Outcome = %q, want completed", summary.Outcome)
	}
}

func TestTranslate_Usage(t *testing.T) {
	chunks := func() []*providers.StreamChunk {
		return []*providers.StreamChunk{textChunk("12345678"), finishChunk("stop"), usageChunk(21, 5)}
	}

	t.Run("trailing usage accepted", func(t *testing.T) {
		rec, summary, err := translate(t, &StreamTranslator{AcceptTrailingUsage: true}, &sliceSource{chunks: chunks()})
		if err != nil {
			t.Fatalf("Translate() error = %v", err)
		}
		checkWellFormed(t, rec.events)
		_, usage := rec.messageDelta(t)
		if usage.OutputTokens != 5 || usage.InputTokens != 21 {
			t.Errorf("usage = %+v, want backend usage", usage)
		}
		if summary.Usage.OutputTokens != 5 {
			t.Errorf("summary usage = %+v", summary.Usage)
		}
	})

	t.Run("estimated without trailing usage", func(t *testing.T) {
		rec, _, err := translate(t, &StreamTranslator{}, &sliceSource{chunks: chunks()})
		if err != nil {
			t.Fatalf("Translate() error = %v", err)
		}
		_, usage := rec.messageDelta(t)
		if usage.OutputTokens != 2 {
			t.Errorf("output_tokens = %d, want estimate 2", usage.OutputTokens)
		}
	})

	t.Run("usage before finish", func(t *testing.T) {
		src := &sliceSource{chunks: []*providers.StreamChunk{textChunk("x"), usageChunk(3, 9), finishChunk("length")}}
		rec, _, err := translate(t, &StreamTranslator{}, src)
		if err != nil {
			t.Fatalf("Translate() error = %v", err)
		}
		delta, usage := rec.messageDelta(t)
		if usage.OutputTokens != 9 {
			t.Errorf("output_tokens = %d, want 9", usage.OutputTokens)
		}
		if delta.StopReason != types.StopReasonMaxTokens {
			t.Errorf("stop_reason = %q, want max_tokens", delta.StopReason)
		}
	})
}

func TestTranslate_EmitFailure(t *testing.T) {
	src := &sliceSource{chunks: []*providers.StreamChunk{textChunk("a"), textChunk("b"), finishChunk("stop")}}
	rec := &recorder{failAt: 4}
	var summary StreamSummary
	tr := &StreamTranslator{OnComplete: func(s StreamSummary) { summary = s }}

	err := tr.Translate(context.Background(), src, &types.MessagesRequest{}, rec.emit)
	if err == nil {
		t.Fatal("Translate() error = nil, want emit failure")
	}
	if summary.Outcome != OutcomeClientGone {
		t.Errorf("Outcome = %q, want client_gone", summary.Outcome)
	}
	if len(rec.events) != 3 {
		t.Errorf("events after failure = %d, want 3", len(rec.events))
	}
}

func TestTranslate_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &recorder{}
	err := (&StreamTranslator{}).Translate(ctx, &sliceSource{}, &types.MessagesRequest{}, rec.emit)
	if !providers.IsCancelled(err) {
		t.Fatalf("Translate() error = %v, want cancelled", err)
	}
	checkWellFormed(t, rec.events)
}
