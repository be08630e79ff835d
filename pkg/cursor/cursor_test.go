package cursor

import "testing"

func TestAdvanceToIsMonotone(t *testing.T) {
	s := New()
	if s.Current() != 0 {
		t.Fatalf("initial cursor = %d", s.Current())
	}

	steps := []struct {
		seq      int64
		moved    bool
		expected int64
	}{
		{seq: 4, moved: true, expected: 5},
		{seq: 4, moved: false, expected: 5},
		{seq: 2, moved: false, expected: 5},
		{seq: 9, moved: true, expected: 10},
		{seq: 10, moved: true, expected: 11},
	}
	for _, step := range steps {
		if moved := s.AdvanceTo(step.seq); moved != step.moved {
			t.Errorf("AdvanceTo(%d) moved = %v, want %v", step.seq, moved, step.moved)
		}
		if s.Current() != step.expected {
			t.Errorf("after AdvanceTo(%d) cursor = %d, want %d", step.seq, s.Current(), step.expected)
		}
	}
}

func TestConsumed(t *testing.T) {
	s := New()
	s.AdvanceTo(7)
	if !s.Consumed(7) || !s.Consumed(0) {
		t.Fatal("ids up to 7 should be consumed")
	}
	if s.Consumed(8) {
		t.Fatal("8 should not be consumed")
	}
}
