package world

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"emberfall/server/internal/protocol"
)

func newTestWorld(cfg Config) *World {
	return New(cfg, zerolog.Nop())
}

func testEnemy(id string, health float64) protocol.Enemy {
	return protocol.Enemy{ID: id, Type: "skeleton", Health: health, MaxHealth: health}
}

func TestDamageEnemyClampsToRemainingHealth(t *testing.T) {
	w := newTestWorld(Config{})
	w.UpsertEnemy(testEnemy("enemy_1", 40))

	applied, killed, err := w.DamageEnemy("enemy_1", 50, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied != 40 {
		t.Fatalf("expected applied damage 40, got %v", applied)
	}
	if !killed {
		t.Fatalf("expected kill")
	}

	enemy, ok := w.Enemy("enemy_1")
	if !ok {
		t.Fatalf("enemy missing after death")
	}
	if enemy.Health != 0 {
		t.Fatalf("expected health 0, got %v", enemy.Health)
	}
	if enemy.Alive {
		t.Fatalf("expected alive=false")
	}
}

func TestDamageEnemyIdempotentDeath(t *testing.T) {
	w := newTestWorld(Config{})
	w.UpsertEnemy(testEnemy("enemy_1", 30))
	now := time.Now()

	sequences := [][]float64{
		{30, 10},
		{10, 10, 10, 50},
		{100, 100},
	}
	for _, seq := range sequences {
		w.UpsertEnemy(testEnemy("enemy_1", 30))
		var kills int
		for _, amount := range seq {
			_, killed, err := w.DamageEnemy("enemy_1", amount, now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if killed {
				kills++
			}
			enemy, _ := w.Enemy("enemy_1")
			if enemy.Health < 0 {
				t.Fatalf("health went negative: %v", enemy.Health)
			}
		}
		if kills != 1 {
			t.Fatalf("sequence %v: expected exactly one kill report, got %d", seq, kills)
		}
		enemy, _ := w.Enemy("enemy_1")
		if enemy.Alive {
			t.Fatalf("sequence %v: enemy came back alive", seq)
		}
	}
}

func TestDamageEnemyAfterDeathIsNoOp(t *testing.T) {
	w := newTestWorld(Config{})
	w.UpsertEnemy(testEnemy("enemy_1", 20))
	now := time.Now()

	if _, killed, _ := w.DamageEnemy("enemy_1", 20, now); !killed {
		t.Fatalf("expected kill on first blow")
	}
	applied, killed, err := w.DamageEnemy("enemy_1", 5, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied != 0 || killed {
		t.Fatalf("expected no-op on dead enemy, got applied=%v killed=%v", applied, killed)
	}
}

func TestDamageEnemyUnknownID(t *testing.T) {
	w := newTestWorld(Config{})
	if _, _, err := w.DamageEnemy("ghost", 10, time.Now()); err != ErrUnknownEnemy {
		t.Fatalf("expected ErrUnknownEnemy, got %v", err)
	}
}

func TestEnemyRespawnAfterDelay(t *testing.T) {
	w := newTestWorld(Config{EnemyRespawnDelay: 10 * time.Second})
	spawn := protocol.Vec3{X: 5, Z: 7}
	enemy := testEnemy("enemy_1", 25)
	enemy.Position = spawn
	w.UpsertEnemy(enemy)

	now := time.Now()
	w.DamageEnemy("enemy_1", 25, now)

	if respawned := w.Advance(now.Add(9 * time.Second)); len(respawned) != 0 {
		t.Fatalf("respawned too early: %v", respawned)
	}

	respawned := w.Advance(now.Add(11 * time.Second))
	if len(respawned) != 1 {
		t.Fatalf("expected one respawn, got %d", len(respawned))
	}
	got := respawned[0]
	if got.ID != "enemy_1" || !got.Alive || got.Health != 25 || got.Position != spawn {
		t.Fatalf("unexpected respawn record: %+v", got)
	}

	// The deadline is consumed; a later sweep must not respawn again.
	if again := w.Advance(now.Add(30 * time.Second)); len(again) != 0 {
		t.Fatalf("expected no duplicate respawn, got %v", again)
	}
}

func TestDamagePlayerClampsAndKills(t *testing.T) {
	w := newTestWorld(Config{PlayerMaxHealth: 50})
	w.UpsertPlayer(protocol.Player{ID: "p1", Username: "Aria"})

	applied, killed, err := w.DamagePlayer("p1", 80)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied != 50 || !killed {
		t.Fatalf("expected applied=50 killed=true, got %v %v", applied, killed)
	}

	applied, killed, _ = w.DamagePlayer("p1", 10)
	if applied != 0 || killed {
		t.Fatalf("dead player absorbed damage: applied=%v killed=%v", applied, killed)
	}
}

func TestRespawnPlayerOnlyWhenDead(t *testing.T) {
	spawn := protocol.Vec3{X: 1, Y: 2, Z: 3}
	w := newTestWorld(Config{SpawnPoint: spawn})
	w.UpsertPlayer(protocol.Player{ID: "p1"})

	if _, err := w.RespawnPlayer("p1"); err != ErrNotDead {
		t.Fatalf("expected ErrNotDead for living player, got %v", err)
	}

	w.DamagePlayer("p1", 1000)
	player, err := w.RespawnPlayer("p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if player.Health != player.MaxHealth {
		t.Fatalf("expected full health, got %v/%v", player.Health, player.MaxHealth)
	}
	if player.Position != spawn {
		t.Fatalf("expected spawn point %v, got %v", spawn, player.Position)
	}
}

func TestSnapshotExcludesRemovedPlayers(t *testing.T) {
	w := newTestWorld(Config{})
	w.UpsertPlayer(protocol.Player{ID: "p1"})
	w.UpsertPlayer(protocol.Player{ID: "p2"})
	w.RemovePlayer("p1")

	players, _ := w.Snapshot()
	if len(players) != 1 || players[0].ID != "p2" {
		t.Fatalf("unexpected snapshot: %+v", players)
	}
}

func TestPlayersExceptOmitsSelf(t *testing.T) {
	w := newTestWorld(Config{})
	w.UpsertPlayer(protocol.Player{ID: "a"})
	w.UpsertPlayer(protocol.Player{ID: "b"})
	w.UpsertPlayer(protocol.Player{ID: "c"})

	others := w.PlayersExcept("b")
	if len(others) != 2 {
		t.Fatalf("expected 2 players, got %d", len(others))
	}
	for _, p := range others {
		if p.ID == "b" {
			t.Fatalf("self leaked into PlayersExcept")
		}
	}
}

func TestChatHistoryBounded(t *testing.T) {
	const histCap = 5
	w := newTestWorld(Config{ChatHistoryCap: histCap})

	for i := 0; i < histCap*3; i++ {
		w.AppendChat(protocol.ChatEntry{Message: fmt.Sprintf("msg-%d", i)})
	}

	recent := w.RecentChat(0)
	if len(recent) != histCap {
		t.Fatalf("expected %d messages, got %d", histCap, len(recent))
	}
	for i, entry := range recent {
		want := fmt.Sprintf("msg-%d", histCap*2+i)
		if entry.Message != want {
			t.Fatalf("position %d: expected %q, got %q", i, want, entry.Message)
		}
	}

	limited := w.RecentChat(2)
	if len(limited) != 2 || limited[1].Message != "msg-14" {
		t.Fatalf("unexpected limited history: %+v", limited)
	}
}

func TestUpsertPlayerDefaults(t *testing.T) {
	w := newTestWorld(Config{PlayerMaxHealth: 100})
	w.UpsertPlayer(protocol.Player{ID: "p1", Level: 0})

	player, _ := w.Player("p1")
	if player.Health != 100 || player.MaxHealth != 100 {
		t.Fatalf("expected default health 100/100, got %v/%v", player.Health, player.MaxHealth)
	}
	if player.Level != 1 {
		t.Fatalf("expected level floor 1, got %d", player.Level)
	}
}

func TestHasTarget(t *testing.T) {
	w := newTestWorld(Config{})
	w.UpsertPlayer(protocol.Player{ID: "p1"})
	w.UpsertEnemy(testEnemy("e1", 10))

	cases := []struct {
		id, targetType string
		want           bool
	}{
		{"p1", protocol.TargetPlayer, true},
		{"e1", protocol.TargetEnemy, true},
		{"p1", protocol.TargetEnemy, false},
		{"e1", protocol.TargetPlayer, false},
		{"nope", protocol.TargetEnemy, false},
		{"p1", "chest", false},
	}
	for _, tc := range cases {
		if got := w.HasTarget(tc.id, tc.targetType); got != tc.want {
			t.Fatalf("HasTarget(%q, %q) = %v, want %v", tc.id, tc.targetType, got, tc.want)
		}
	}
}

func TestUnknownIDMutationsAreLoggedNoOps(t *testing.T) {
	var buf bytes.Buffer
	w := New(Config{}, zerolog.New(&buf))
	w.UpsertPlayer(protocol.Player{ID: "p1"})

	if _, _, err := w.DamageEnemy("ghost", 10, time.Now()); err != ErrUnknownEnemy {
		t.Fatalf("expected ErrUnknownEnemy, got %v", err)
	}
	if _, _, err := w.DamagePlayer("ghost", 10); err != ErrUnknownPlayer {
		t.Fatalf("expected ErrUnknownPlayer, got %v", err)
	}
	if err := w.SetPlayerPosition("ghost", protocol.Vec3{X: 1}, 0); err != ErrUnknownPlayer {
		t.Fatalf("expected ErrUnknownPlayer, got %v", err)
	}

	if player, ok := w.Player("p1"); !ok || player.Health <= 0 {
		t.Fatalf("unrelated player disturbed: %+v ok=%v", player, ok)
	}
	if got := buf.String(); !strings.Contains(got, "ghost") {
		t.Fatalf("expected dropped mutations in the log, got %q", got)
	}
}
