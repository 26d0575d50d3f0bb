package llm

import "strings"

// PullFunc yields the next text fragment of a stream. It returns ok=false
// once the stream is exhausted.
type PullFunc func() (fragment string, ok bool, err error)

// Stream is a lazy, finite, non-restartable sequence of generated text
// fragments. It is consumed by a single goroutine:
//
//	for s.Next() {
//		fmt.Print(s.Text())
//	}
//	if err := s.Err(); err != nil { ... }
//
// Consumers must either drain the stream or call Close to abandon it.
// Abandonment is not an error: Err stays nil and finish hooks are not run.
type Stream struct {
	model  string
	pull   PullFunc
	closer func() error

	text      string
	err       error
	done      bool
	abandoned bool
	onFinish  []func(error)
}

// NewStream wraps a pull function. closer may be nil.
func NewStream(model string, pull PullFunc, closer func() error) *Stream {
	return &Stream{model: model, pull: pull, closer: closer}
}

// NewSliceStream returns a stream over fixed fragments.
func NewSliceStream(model string, fragments ...string) *Stream {
	i := 0
	return NewStream(model, func() (string, bool, error) {
		if i >= len(fragments) {
			return "", false, nil
		}
		i++
		return fragments[i-1], true, nil
	}, nil)
}

// Model identifies the backend producing this stream.
func (s *Stream) Model() string { return s.model }

// Next advances to the next non-empty fragment. It returns false when the
// stream is exhausted, failed, or was closed.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}

	for {
		frag, ok, err := s.pull()
		if err != nil {
			s.err = err
			s.finish()
			return false
		}
		if !ok {
			s.finish()
			return false
		}
		if frag == "" {
			continue
		}
		s.text = frag
		return true
	}
}

// Text returns the fragment produced by the last successful Next.
func (s *Stream) Text() string { return s.text }

// Err returns the error that ended the stream, if any.
func (s *Stream) Err() error { return s.err }

// Abandoned reports whether the stream was closed before it was drained.
func (s *Stream) Abandoned() bool { return s.abandoned }

// OnFinish registers fn to run once when the stream is drained or fails.
// It is not run when the stream is abandoned via Close.
func (s *Stream) OnFinish(fn func(err error)) {
	s.onFinish = append(s.onFinish, fn)
}

// Close abandons the stream if it has not been drained and releases the
// underlying connection. Close is idempotent.
func (s *Stream) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	s.abandoned = true
	s.text = ""
	return s.release()
}

// Collect drains the stream and returns the concatenated text.
func (s *Stream) Collect() (string, error) {
	var sb strings.Builder
	for s.Next() {
		sb.WriteString(s.Text())
	}
	return sb.String(), s.Err()
}

func (s *Stream) finish() {
	s.done = true
	s.text = ""
	if err := s.release(); err != nil && s.err == nil {
		s.err = err
	}
	for _, fn := range s.onFinish {
		fn(s.err)
	}
}

func (s *Stream) release() error {
	if s.closer == nil {
		return nil
	}
	closer := s.closer
	s.closer = nil
	return closer()
}
