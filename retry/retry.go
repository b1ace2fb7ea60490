// Package retry composes one primary and one optional fallback
// llm.ProviderClient under a fixed attempt schedule: primary,
// primary-retry-if-retriable, fallback. Keeping the policy in a wrapper
// rather than inside each client keeps the clients simple and makes the
// policy testable with a scripted fake.
package retry

import (
	"context"
	"encoding/json"
	"errors"

	"llmcore/llm"
	"llmcore/message"
	"llmcore/schema"

	"github.com/rs/zerolog/log"
)

// Config configures a Wrapper.
type Config struct {
	PrimaryModelID  string
	FallbackModelID string // empty disables fallback
}

// Wrapper implements llm.ProviderClient by composing Primary and an
// optional Fallback client.
type Wrapper struct {
	Primary  llm.ProviderClient
	Fallback llm.ProviderClient
	Config   Config
}

func New(primary, fallback llm.ProviderClient, cfg Config) *Wrapper {
	return &Wrapper{Primary: primary, Fallback: fallback, Config: cfg}
}

func (w *Wrapper) fallbackUsable() bool {
	return w.Fallback != nil && w.Config.FallbackModelID != "" &&
		w.Config.FallbackModelID != w.Config.PrimaryModelID
}

// GenerateResponse applies the unary attempt schedule: primary, primary
// again if the first failure was retriable, then fallback. On all-failure
// the primary's error is returned.
func (w *Wrapper) GenerateResponse(ctx context.Context, req llm.Request) (llm.Output, error) {
	out, err := w.callOnce(ctx, w.Primary, req, "attempt 1 (primary)")
	if err == nil {
		return out, nil
	}

	if llm.Retriable(err) {
		out, retryErr := w.callOnce(ctx, w.Primary, req, "attempt 2 (primary retry)")
		if retryErr == nil {
			return out, nil
		}
		err = retryErr
	}

	if !w.fallbackUsable() {
		return llm.Output{}, err
	}

	fbOut, fbErr := w.callOnce(ctx, w.Fallback, req, "attempt 3 (fallback)")
	if fbErr == nil {
		return fbOut, nil
	}
	log.Ctx(ctx).Warn().Err(fbErr).Msg("fallback attempt also failed; re-raising primary error")
	return llm.Output{}, err
}

func (w *Wrapper) callOnce(ctx context.Context, client llm.ProviderClient, req llm.Request, label string) (llm.Output, error) {
	log.Ctx(ctx).Info().Str("attempt", label).Str("model", req.Model).Msg("llm_attempt")
	out, err := client.GenerateResponse(ctx, req)
	if err != nil {
		return llm.Output{}, err
	}
	if out.Content == "" && len(out.ToolCalls) == 0 {
		return llm.Output{}, llm.NewErrorf(llm.KindEmptyResponse, "retry", req.Model, "received empty response from LLM")
	}
	return out, nil
}

// GenerateResponseStream applies the same attempt schedule, but only while
// no event has been forwarded to the caller. Once any event reaches the
// caller, a subsequent failure surfaces as an Error event with no further
// attempts: the partial content is already committed to the reader.
func (w *Wrapper) GenerateResponseStream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	out := make(chan llm.StreamEvent)
	go func() {
		defer close(out)
		w.runStream(ctx, req, out)
	}()
	return out, nil
}

func (w *Wrapper) runStream(ctx context.Context, req llm.Request, out chan<- llm.StreamEvent) {
	done, failErr := w.streamOnce(ctx, w.Primary, req, out)
	if done {
		return
	}
	if llm.Retriable(failErr) {
		done, retryErr := w.streamOnce(ctx, w.Primary, req, out)
		if done {
			return
		}
		failErr = retryErr
	}
	if w.fallbackUsable() {
		fbEvents, fbErr := w.Fallback.GenerateResponseStream(ctx, req)
		if fbErr != nil {
			log.Ctx(ctx).Warn().Err(fbErr).Msg("fallback stream also failed; re-raising primary error")
			out <- llm.ErrorEvent(toLLMError(failErr))
			return
		}
		forwardAll(ctx, fbEvents, out)
		return
	}
	out <- llm.ErrorEvent(toLLMError(failErr))
}

// streamOnce runs a single streaming attempt, forwarding events to out. It
// returns done=true when the attempt committed anything to the caller (any
// event forwarded, a terminal Done/Error relayed, or the context was
// cancelled); done=false with a non-nil failErr means the attempt failed
// before the caller saw anything, so another attempt is still permitted.
func (w *Wrapper) streamOnce(ctx context.Context, client llm.ProviderClient, req llm.Request, out chan<- llm.StreamEvent) (done bool, failErr error) {
	events, err := client.GenerateResponseStream(ctx, req)
	if err != nil {
		return false, err
	}
	yielded := false
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case ev, ok := <-events:
			if !ok {
				if yielded {
					return true, nil
				}
				return false, llm.NewErrorf(llm.KindEmptyResponse, "retry", req.Model, "stream ended without emitting any events")
			}
			switch ev.Kind {
			case llm.EventContent, llm.EventToolCall:
				yielded = true
				out <- ev
			case llm.EventDone:
				out <- ev
				return true, nil
			case llm.EventError:
				if yielded {
					out <- ev
					return true, nil
				}
				if ev.Err != nil {
					return false, ev.Err
				}
				return false, llm.NewErrorf(llm.KindEmptyResponse, "retry", req.Model, "stream failed before emitting any events")
			default:
				out <- ev
			}
		}
	}
}

func forwardAll(ctx context.Context, in <-chan llm.StreamEvent, out chan<- llm.StreamEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			out <- ev
			if ev.Kind == llm.EventDone || ev.Kind == llm.EventError {
				return
			}
		}
	}
}

func toLLMError(err error) *llm.Error {
	var e *llm.Error
	if errors.As(err, &e) {
		return e
	}
	return llm.NewError(llm.KindProviderConnection, "retry", "", err)
}

// GenerateStructured delegates to Primary; the structured-output path
// already carries its own bounded retry loop at the provider layer, so the
// wrapper does not retry or fall back on top of it.
func (w *Wrapper) GenerateStructured(ctx context.Context, req llm.Request, sch schema.Schema, maxRetries int) (json.RawMessage, error) {
	return w.Primary.GenerateStructured(ctx, req, sch, maxRetries)
}

// FormatUserMessageWithFile delegates to Primary; building a file message
// is local work with nothing to retry or fall back on.
func (w *Wrapper) FormatUserMessageWithFile(ctx context.Context, opts llm.FileMessageOptions) (message.Message, error) {
	return w.Primary.FormatUserMessageWithFile(ctx, opts)
}
