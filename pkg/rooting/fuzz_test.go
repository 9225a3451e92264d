package rooting

import (
	"errors"
	"testing"

	"github.com/funvibe/fxhost/internal/engine"
)

// FuzzFrameSlots drives random sequences of frame and scope operations and
// checks that capacity is never exceeded, failures are typed, and rooted
// values survive collection.
func FuzzFrameSlots(f *testing.F) {
	f.Add([]byte{0, 4, 2, 2, 2, 2, 2, 3, 5})
	f.Add([]byte{0, 16, 1, 3, 2, 2, 2, 2, 4, 2, 5, 4, 6})
	f.Add([]byte{0, 255, 0, 255, 0, 255})
	f.Add([]byte{1, 2, 3, 4, 5, 6, 7})

	f.Fuzz(func(t *testing.T, data []byte) {
		e := engine.New(engine.Config{GCThreshold: 1})
		a := NewArena(e, 64)
		if err := e.AddRootScanner(a); err != nil {
			t.Fatal(err)
		}

		type tracked struct {
			v    Value
			want int64
		}
		var (
			frames []*Frame
			scopes []*Scope // innermost last, across frames
			values []tracked
			next   int64
		)

		arg := func(i int) int {
			if i+1 < len(data) {
				return int(data[i+1])
			}
			return 0
		}

		for i := 0; i < len(data); i++ {
			switch data[i] % 7 {
			case 0: // open a frame
				capacity := arg(i)%40 + 1
				fr, err := a.Open(capacity)
				if err != nil {
					var ae *AllocError
					if !errors.As(err, &ae) || ae.Kind != StackOverflow {
						t.Fatalf("open(%d): unexpected error %v", capacity, err)
					}
					continue
				}
				s, err := fr.Scope()
				if err != nil {
					t.Fatalf("root scope: %v", err)
				}
				frames = append(frames, fr)
				scopes = append(scopes, s)
			case 1: // reserve a child
				if len(scopes) == 0 {
					continue
				}
				s := scopes[len(scopes)-1]
				child, err := s.Reserve(arg(i) % 8)
				if err != nil {
					if !IsCapacity(err) && !errors.Is(err, ErrScopeNotActive) && !errors.Is(err, ErrScopeClosed) {
						t.Fatalf("reserve: unexpected error %v", err)
					}
					continue
				}
				scopes = append(scopes, child)
			case 2: // root a value
				if len(scopes) == 0 {
					continue
				}
				s := scopes[len(scopes)-1]
				next++
				v, err := s.NewValue(next)
				if err != nil {
					if !IsCapacity(err) && !errors.Is(err, ErrScopeClosed) && !errors.Is(err, ErrScopeNotActive) {
						t.Fatalf("new value: unexpected error %v", err)
					}
					continue
				}
				values = append(values, tracked{v: v, want: next})
			case 3: // close the innermost scope
				if len(scopes) == 0 {
					continue
				}
				scopes[len(scopes)-1].Close()
				scopes = scopes[:len(scopes)-1]
			case 4: // close a whole frame
				if len(frames) == 0 {
					continue
				}
				frames[arg(i)%len(frames)].Close()
			case 5, 6: // collect
				if _, err := e.Collect(); err != nil {
					t.Fatal(err)
				}
			}

			used := 0
			for _, fr := range frames {
				if fr.Len() > fr.Capacity() {
					t.Fatalf("frame holds %d slots, capacity %d", fr.Len(), fr.Capacity())
				}
				if !fr.Closed() {
					used += fr.Capacity()
				}
			}
			if used != a.InUse() || a.InUse() > a.Capacity() {
				t.Fatalf("arena in use = %d, open frames hold %d, capacity %d", a.InUse(), used, a.Capacity())
			}
		}

		if _, err := e.Collect(); err != nil {
			t.Fatal(err)
		}
		for _, tv := range values {
			got, err := tv.v.Load()
			if !tv.v.Valid() {
				if !errors.Is(err, ErrValueExpired) {
					t.Fatalf("expired value: err = %v", err)
				}
				continue
			}
			if err != nil || got != tv.want {
				t.Fatalf("rooted value = %v, %v; want %d", got, err, tv.want)
			}
		}

		for _, fr := range frames {
			fr.Close()
		}
		if a.InUse() != 0 {
			t.Fatalf("arena in use = %d after closing every frame", a.InUse())
		}
	})
}
