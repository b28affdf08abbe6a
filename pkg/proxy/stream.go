package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"mercator-hq/courier/pkg/providers"
	"mercator-hq/courier/pkg/proxy/types"
)

// ChunkSource yields backend stream fragments. Read returns io.EOF once the
// stream is exhausted. providers.StreamReader satisfies it.
type ChunkSource interface {
	Read(ctx context.Context) (*providers.StreamChunk, error)
}

// Stream outcomes reported in StreamSummary.
const (
	OutcomeCompleted  = "completed"
	OutcomeCancelled  = "cancelled"
	OutcomeError      = "error"
	OutcomeClientGone = "client_gone"
)

// StreamSummary describes a finished translation.
type StreamSummary struct {
	Outcome     string
	StopReason  string
	Usage       types.Usage
	Blocks      int
	ToolCalls   int
	Fragments   int
	Discarded   int
	Synthesized bool
}

// StreamTranslator converts a chat completions fragment stream into
// Anthropic stream events. Configure one per request; each Translate call
// owns its own state.
type StreamTranslator struct {
	// MessageID is sent in message_start. Empty means a random id.
	MessageID string

	// InputTokens is the input token estimate sent in message_start.
	InputTokens int

	// Canceled is polled before every fragment.
	Canceled func() bool

	// AcceptTrailingUsage defers message_delta until the source ends, so a
	// usage fragment sent after the finish reason is still reported.
	AcceptTrailingUsage bool

	// OnComplete, if set, receives the summary when Translate returns.
	OnComplete func(StreamSummary)
}

type phase int

const (
	phaseStarted phase = iota
	phaseStreaming
	phaseFinished
	phaseCancelled
	phaseErrored
)

type blockKind int

const (
	blockNone blockKind = iota
	blockText
	blockToolUse
)

// toolBlock tracks one backend tool call, keyed by its call index.
type toolBlock struct {
	index int
	id    string
	name  string
	args  strings.Builder
}

// streamState is the per-stream translation state.
type streamState struct {
	ctx  context.Context
	emit func(types.StreamEvent) error

	nextIndex int
	openIndex int
	openKind  blockKind
	openCall  int

	textChars  int
	tools      map[int]*toolBlock
	usage      *providers.Usage
	stopReason string

	phase      phase
	terminated bool
	summary    StreamSummary
}

// Translate reads src until it ends and emits the translated events.
//
// The stream always opens with message_start and ping. Text and tool call
// fragments become content blocks, with at most one block open at a time.
// The first finish reason closes the message; later fragments are read and
// discarded. A stream that ends without a finish reason is closed as if it
// had finished. Cancellation and source errors end the stream with a single
// error event.
//
// Translate returns nil when message_stop was emitted. Otherwise it returns
// the cancellation or source error (already reported to the client as an
// error event) or the error returned by emit.
func (t *StreamTranslator) Translate(ctx context.Context, src ChunkSource, req *types.MessagesRequest, emit func(types.StreamEvent) error) (err error) {
	st := &streamState{
		ctx:   ctx,
		emit:  emit,
		tools: make(map[int]*toolBlock),
	}
	defer func() {
		st.summary.Blocks = st.nextIndex
		st.summary.ToolCalls = len(st.tools)
		st.summary.StopReason = st.stopReason
		st.summary.Usage = st.frontendUsage()
		if st.summary.Outcome == "" {
			st.summary.Outcome = OutcomeError
		}
		if t.OnComplete != nil {
			t.OnComplete(st.summary)
		}
	}()

	messageID := t.MessageID
	if messageID == "" {
		messageID = NewMessageID()
	}
	if err := st.send(types.MessageStartEvent(&types.MessagesResponse{
		ID:      messageID,
		Type:    "message",
		Role:    types.RoleAssistant,
		Model:   req.Model,
		Content: []types.ResponseBlock{},
		Usage:   types.Usage{InputTokens: t.InputTokens},
	})); err != nil {
		return err
	}
	if err := st.send(types.PingEvent()); err != nil {
		return err
	}

	for {
		if t.cancelled(ctx) {
			return st.cancel(providers.NewCancelledError("request cancelled"))
		}

		chunk, readErr := src.Read(ctx)
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return st.fail(readErr)
		}
		st.summary.Fragments++

		if chunk.Usage != nil && (st.phase != phaseFinished || t.AcceptTrailingUsage) {
			st.usage = chunk.Usage
		}

		if st.phase == phaseFinished {
			if chunk.FirstChoice() != nil {
				st.summary.Discarded++
			}
			continue
		}

		choice := chunk.FirstChoice()
		if choice == nil {
			continue
		}
		st.phase = phaseStreaming

		if choice.Delta.Content != "" {
			if err := st.text(choice.Delta.Content); err != nil {
				return err
			}
		}
		for i, tc := range choice.Delta.ToolCalls {
			if err := st.toolCall(i, tc); err != nil {
				return err
			}
		}

		if choice.FinishReason != nil && *choice.FinishReason != "" {
			if err := st.closeOpen(); err != nil {
				return err
			}
			st.stopReason = MapStopReason(ctx, *choice.FinishReason)
			st.phase = phaseFinished
			if !t.AcceptTrailingUsage {
				if err := st.end(); err != nil {
					return err
				}
			}
		}
	}

	if st.phase != phaseFinished {
		slog.WarnContext(ctx, "backend stream ended without finish reason, closing message",
			"blocks", st.nextIndex,
		)
		if err := st.closeOpen(); err != nil {
			return err
		}
		st.stopReason = types.StopReasonEndTurn
		if len(st.tools) > 0 {
			st.stopReason = types.StopReasonToolUse
		}
		st.phase = phaseFinished
		st.summary.Synthesized = true
	}

	if st.terminated {
		return nil
	}
	return st.end()
}

func (t *StreamTranslator) cancelled(ctx context.Context) bool {
	if t.Canceled != nil && t.Canceled() {
		return true
	}
	return ctx.Err() != nil
}

// send emits ev. Nothing is emitted after a terminal event.
func (st *streamState) send(ev types.StreamEvent) error {
	if st.terminated {
		return nil
	}
	if ev.IsTerminal() {
		st.terminated = true
	}
	if err := st.emit(ev); err != nil {
		st.terminated = true
		st.phase = phaseErrored
		st.summary.Outcome = OutcomeClientGone
		return fmt.Errorf("write %s event: %w", ev.Type, err)
	}
	return nil
}

// text emits a text fragment, opening a text block if needed.
func (st *streamState) text(text string) error {
	if st.openKind != blockText {
		if err := st.closeOpen(); err != nil {
			return err
		}
		if err := st.open(blockText, types.TextBlock("")); err != nil {
			return err
		}
	}
	st.textChars += utf8.RuneCountInString(text)
	return st.send(types.TextDeltaEvent(st.openIndex, text))
}

// toolCall handles one tool call fragment. position is the fragment's
// position in the delta, used when the backend omits the call index.
func (st *streamState) toolCall(position int, tc providers.ToolCall) error {
	callIndex := position
	if tc.Index != nil {
		callIndex = *tc.Index
	}

	tb, seen := st.tools[callIndex]
	if !seen {
		if err := st.closeOpen(); err != nil {
			return err
		}
		tb = &toolBlock{id: tc.ID, name: tc.Function.Name}
		if tb.id == "" {
			tb.id = newToolUseID()
		}
		st.tools[callIndex] = tb
		if err := st.open(blockToolUse, types.ToolUseBlock(tb.id, tb.name, nil)); err != nil {
			return err
		}
		tb.index = st.openIndex
		st.openCall = callIndex
	}

	fragment := tc.Function.Arguments
	if fragment == "" {
		return nil
	}
	tb.args.WriteString(fragment)

	if st.openKind != blockToolUse || st.openCall != callIndex {
		slog.WarnContext(st.ctx, "tool call fragment arrived after its block closed, not forwarded",
			"call_index", callIndex,
			"block_index", tb.index,
		)
		return nil
	}
	return st.send(types.InputJSONDeltaEvent(tb.index, fragment))
}

// open starts a new block at the next index.
func (st *streamState) open(kind blockKind, block types.ResponseBlock) error {
	st.openIndex = st.nextIndex
	st.openKind = kind
	st.nextIndex++
	return st.send(types.BlockStartEvent(st.openIndex, block))
}

// closeOpen stops the open block, if any.
func (st *streamState) closeOpen() error {
	if st.openKind == blockNone {
		return nil
	}
	index := st.openIndex
	st.openKind = blockNone
	return st.send(types.BlockStopEvent(index))
}

// end emits message_delta and message_stop.
func (st *streamState) end() error {
	usage := st.frontendUsage()
	delta := types.DeltaUsage{OutputTokens: usage.OutputTokens}
	if st.usage != nil {
		delta.InputTokens = st.usage.PromptTokens
	}
	if err := st.send(types.MessageDeltaEvent(st.stopReason, nil, delta)); err != nil {
		return err
	}
	if err := st.send(types.MessageStopEvent()); err != nil {
		return err
	}
	st.summary.Outcome = OutcomeCompleted
	return nil
}

// cancel ends the stream with a request_cancelled error event.
func (st *streamState) cancel(cause error) error {
	if st.phase == phaseFinished {
		// The message is complete; only the trailing usage wait was cut short.
		if err := st.end(); err != nil {
			return err
		}
		return nil
	}
	st.phase = phaseCancelled
	st.summary.Outcome = OutcomeCancelled
	_ = st.send(ErrorEvent(cause))
	return cause
}

// fail ends the stream after a source error.
func (st *streamState) fail(cause error) error {
	if providers.IsCancelled(cause) {
		return st.cancel(cause)
	}
	if st.phase == phaseFinished {
		slog.WarnContext(st.ctx, "backend stream failed after finish reason", "error", cause)
		return st.end()
	}
	slog.ErrorContext(st.ctx, "backend stream failed", "error", cause)
	st.phase = phaseErrored
	st.summary.Outcome = OutcomeError
	_ = st.send(ErrorEvent(cause))
	return cause
}

// frontendUsage reports backend usage, or estimates output tokens from the
// streamed characters when the backend sent none.
func (st *streamState) frontendUsage() types.Usage {
	if st.usage != nil {
		return types.Usage{
			InputTokens:  st.usage.PromptTokens,
			OutputTokens: st.usage.CompletionTokens,
		}
	}
	chars := st.textChars
	for _, tb := range st.tools {
		chars += utf8.RuneCountInString(tb.args.String())
	}
	return types.Usage{OutputTokens: (chars + 3) / 4}
}
