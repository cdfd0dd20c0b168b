package splitter

import "context"

type callKey struct{}

// callFrame links the splitters currently executing on a call path.
type callFrame struct {
	s      *Splitter
	parent *callFrame
}

// enter serializes state-changing calls. A call whose context already passes
// through s is a reentrant call and is rejected instead of waiting on itself.
func (s *Splitter) enter(ctx context.Context) (context.Context, func(), error) {
	parent, _ := ctx.Value(callKey{}).(*callFrame)
	for f := parent; f != nil; f = f.parent {
		if f.s == s {
			return nil, nil, ErrReentrantCall
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	select {
	case s.calls <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	inner := context.WithValue(ctx, callKey{}, &callFrame{s: s, parent: parent})
	return inner, func() { <-s.calls }, nil
}

// inCall reports whether ctx belongs to a call currently executing in s.
func (s *Splitter) inCall(ctx context.Context) bool {
	f, _ := ctx.Value(callKey{}).(*callFrame)
	for ; f != nil; f = f.parent {
		if f.s == s {
			return true
		}
	}
	return false
}
