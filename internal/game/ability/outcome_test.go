package ability

import "testing"

func TestTargetOf(t *testing.T) {
	if got := TargetOf(CollectGold{Amount: Int(1)}); got != nil {
		t.Fatalf("collect gold has no target, got %+v", got)
	}
	if got := TargetOf(Draw{Amount: Int(1)}); got != nil {
		t.Fatalf("draw has no target, got %+v", got)
	}
	got := TargetOf(DealDamage{Target: Enemy(2, 3), Amount: Int(1)})
	if got == nil || got.Side != SideEnemy || len(got.Positions) != 2 {
		t.Fatalf("unexpected deal damage target %+v", got)
	}
	got = TargetOf(KeepBoost{Target: Self()})
	if got == nil || len(got.Positions) != 0 {
		t.Fatalf("empty self target should be returned as is, got %+v", got)
	}
}

func TestWithActorStampsPlayer(t *testing.T) {
	o, err := WithActor(AddShield{Target: Self(5), Amount: Int(1)}, "alice")
	if err != nil {
		t.Fatalf("WithActor: %v", err)
	}
	if o.ActingPlayer() != "alice" {
		t.Fatalf("expected alice, got %q", o.ActingPlayer())
	}
	if TargetOf(o) == nil {
		t.Fatalf("target lost while stamping the actor")
	}
}
