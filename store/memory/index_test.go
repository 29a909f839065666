package memory

import (
	"context"
	"testing"
	"time"

	"github.com/tempohq/tempo/id"
)

func TestIndex_RangeDue(t *testing.T) {
	t.Parallel()
	x := NewIndex()
	ctx := context.Background()

	late, early, future := id.NewJobID(), id.NewJobID(), id.NewJobID()
	_ = x.Upsert(ctx, late, base.Add(2*time.Second))
	_ = x.Upsert(ctx, early, base)
	_ = x.Upsert(ctx, future, base.Add(time.Hour))

	got, err := x.RangeDue(ctx, base.Add(2*time.Second))
	if err != nil {
		t.Fatalf("RangeDue: %v", err)
	}
	if len(got) != 2 || got[0] != early || got[1] != late {
		t.Fatalf("RangeDue = %v, want [%s %s]", got, early, late)
	}
}

func TestIndex_UpsertMoves(t *testing.T) {
	t.Parallel()
	x := NewIndex()
	ctx := context.Background()

	jid := id.NewJobID()
	_ = x.Upsert(ctx, jid, base)
	_ = x.Upsert(ctx, jid, base.Add(5*time.Minute))

	if x.Len() != 1 {
		t.Fatalf("Len = %d, want 1", x.Len())
	}
	if got, _ := x.RangeDue(ctx, base); len(got) != 0 {
		t.Errorf("moved entry still due at old time: %v", got)
	}
	at, ok, err := x.Score(ctx, jid)
	if err != nil || !ok || !at.Equal(base.Add(5*time.Minute)) {
		t.Errorf("Score = %v, %v, %v", at, ok, err)
	}
}

func TestIndex_Remove(t *testing.T) {
	t.Parallel()
	x := NewIndex()
	ctx := context.Background()

	jid := id.NewJobID()
	_ = x.Upsert(ctx, jid, base)

	if err := x.Remove(ctx, jid); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := x.Remove(ctx, jid); err != nil {
		t.Fatalf("Remove absent: %v", err)
	}
	if _, ok, _ := x.Score(ctx, jid); ok {
		t.Error("entry still present after Remove")
	}
}
