// Package resolve turns collected image placeholders into descriptions by
// calling an injected describer, sequentially or with fan-out and join.
package resolve

import "context"

// DefaultPrompt asks for alt text.
const DefaultPrompt = "Describe this image concisely for use as alt text."

// Describer is a blocking image-description capability.
type Describer interface {
	Describe(ctx context.Context, data []byte, mime, prompt string) (string, error)
}

// DescriberFunc adapts a function to Describer.
type DescriberFunc func(ctx context.Context, data []byte, mime, prompt string) (string, error)

func (f DescriberFunc) Describe(ctx context.Context, data []byte, mime, prompt string) (string, error) {
	return f(ctx, data, mime, prompt)
}

// Outcome is the result of one asynchronous description.
type Outcome struct {
	Text string
	Err  error
}

// AsyncDescriber starts a description and returns immediately. The channel
// must be buffered or otherwise never block the sender, since results of
// cancelled calls are abandoned.
type AsyncDescriber interface {
	DescribeAsync(ctx context.Context, data []byte, mime, prompt string) <-chan Outcome
}

// Async runs each call of d on its own goroutine.
func Async(d Describer) AsyncDescriber {
	return asyncAdapter{d: d}
}

type asyncAdapter struct {
	d Describer
}

func (a asyncAdapter) DescribeAsync(ctx context.Context, data []byte, mime, prompt string) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		text, err := a.d.Describe(ctx, data, mime, prompt)
		ch <- Outcome{Text: text, Err: err}
	}()
	return ch
}
