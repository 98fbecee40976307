package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"idle-arena/internal/battle"
	"idle-arena/internal/combat"
)

const battleColumns = `id, character_id, enemy_id, region_id, kind, status, policy,
	revive_on_wipe, max_turns, turn, created_at, started_at, ended_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBattle(row rowScanner) (battle.Battle, error) {
	var (
		b                       battle.Battle
		kind, status            string
		revive                  int
		created, started, ended int64
	)
	if err := row.Scan(&b.ID, &b.CharacterID, &b.EnemyID, &b.RegionID, &kind, &status, &b.Policy,
		&revive, &b.MaxTurns, &b.Turn, &created, &started, &ended); err != nil {
		return battle.Battle{}, err
	}
	var err error
	if b.Kind, err = battle.ParseKind(kind); err != nil {
		return battle.Battle{}, err
	}
	if b.Status, err = battle.ParseStatus(status); err != nil {
		return battle.Battle{}, err
	}
	b.ReviveOnWipe = revive != 0
	b.CreatedAt = fromMillis(created)
	b.StartedAt = fromMillis(started)
	b.EndedAt = fromMillis(ended)
	return b, nil
}

func (s *Store) GetBattle(ctx context.Context, id string) (battle.Battle, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+battleColumns+` FROM battles WHERE id = ?`, id)
	b, err := scanBattle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return battle.Battle{}, fmt.Errorf("battle %s: %w", id, battle.ErrNotFound)
	}
	if err != nil {
		return battle.Battle{}, fmt.Errorf("get battle %s: %w", id, err)
	}
	return b, nil
}

func (s *Store) SaveBattle(ctx context.Context, b battle.Battle) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO battles (`+battleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	status = excluded.status,
	policy = excluded.policy,
	revive_on_wipe = excluded.revive_on_wipe,
	max_turns = excluded.max_turns,
	turn = excluded.turn,
	started_at = excluded.started_at,
	ended_at = excluded.ended_at
`,
		b.ID, b.CharacterID, b.EnemyID, b.RegionID, b.Kind.String(), b.Status.String(), b.Policy,
		boolInt(b.ReviveOnWipe), b.MaxTurns, b.Turn,
		toMillis(b.CreatedAt), toMillis(b.StartedAt), toMillis(b.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("save battle %s: %w", b.ID, err)
	}
	return nil
}

// ListBattles returns battles with the given status, oldest first
func (s *Store) ListBattles(ctx context.Context, status battle.Status) ([]battle.Battle, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+battleColumns+` FROM battles WHERE status = ? ORDER BY created_at, id`, status.String())
	if err != nil {
		return nil, fmt.Errorf("list battles: %w", err)
	}
	defer rows.Close()

	out := make([]battle.Battle, 0)
	for rows.Next() {
		b, err := scanBattle(rows)
		if err != nil {
			return nil, fmt.Errorf("list battles: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SaveParticipant upserts by (battle, id); the first insert fixes the order
func (s *Store) SaveParticipant(ctx context.Context, p battle.Participant) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO participants (
	battle_id, id, source_id, name, team, is_player, level,
	health, max_health, alive, death_time, revives, stats
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(battle_id, id) DO UPDATE SET
	health = excluded.health,
	max_health = excluded.max_health,
	alive = excluded.alive,
	death_time = excluded.death_time,
	revives = excluded.revives,
	stats = excluded.stats
`,
		p.BattleID, p.ID, p.SourceID, p.Name, p.Team, boolInt(p.IsPlayer), p.Level,
		p.Health, p.MaxHealth, boolInt(p.Alive), toMillis(p.DeathTime), p.Revives,
		string(combat.EncodeStats(p.Stats)),
	)
	if err != nil {
		return fmt.Errorf("save participant %s/%s: %w", p.BattleID, p.ID, err)
	}
	return nil
}

// GetParticipants returns a battle's participants in insertion order.
// Unreadable stats fall back to defaults.
func (s *Store) GetParticipants(ctx context.Context, battleID string) ([]battle.Participant, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, source_id, name, team, is_player, level, health, max_health, alive, death_time, revives, stats
FROM participants WHERE battle_id = ? ORDER BY seq`, battleID)
	if err != nil {
		return nil, fmt.Errorf("get participants %s: %w", battleID, err)
	}
	defer rows.Close()

	out := make([]battle.Participant, 0)
	for rows.Next() {
		var (
			p               battle.Participant
			isPlayer, alive int
			deathTime       int64
			stats           string
		)
		if err := rows.Scan(&p.ID, &p.SourceID, &p.Name, &p.Team, &isPlayer, &p.Level,
			&p.Health, &p.MaxHealth, &alive, &deathTime, &p.Revives, &stats); err != nil {
			return nil, fmt.Errorf("get participants %s: %w", battleID, err)
		}
		p.BattleID = battleID
		p.IsPlayer = isPlayer != 0
		p.Alive = alive != 0
		p.DeathTime = fromMillis(deathTime)
		p.Stats = combat.ParseStats([]byte(stats), p.ID)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) SaveEvent(ctx context.Context, e battle.LogEntry) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO battle_events (battle_id, turn, type, actor_id, target_id, amount, critical, at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.BattleID, e.Turn, e.Type, e.ActorID, e.TargetID, e.Amount, boolInt(e.Critical), toMillis(e.At),
	)
	if err != nil {
		return fmt.Errorf("save event for %s: %w", e.BattleID, err)
	}
	return nil
}

// GetEvents returns the combat log of a battle in write order
func (s *Store) GetEvents(ctx context.Context, battleID string) ([]battle.LogEntry, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT turn, type, actor_id, target_id, amount, critical, at
FROM battle_events WHERE battle_id = ? ORDER BY seq`, battleID)
	if err != nil {
		return nil, fmt.Errorf("get events %s: %w", battleID, err)
	}
	defer rows.Close()

	out := make([]battle.LogEntry, 0)
	for rows.Next() {
		e := battle.LogEntry{BattleID: battleID}
		var critical int
		var at int64
		if err := rows.Scan(&e.Turn, &e.Type, &e.ActorID, &e.TargetID, &e.Amount, &critical, &at); err != nil {
			return nil, fmt.Errorf("get events %s: %w", battleID, err)
		}
		e.Critical = critical != 0
		e.At = fromMillis(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveResult inserts the result of a battle. A second result for the same
// battle violates the primary key and is rejected.
func (s *Store) SaveResult(ctx context.Context, r battle.Result) error {
	survivors, err := json.Marshal(nonNil(r.Survivors))
	if err != nil {
		return fmt.Errorf("save result %s: %w", r.BattleID, err)
	}
	items, err := json.Marshal(nonNil(r.Rewards.Items))
	if err != nil {
		return fmt.Errorf("save result %s: %w", r.BattleID, err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO battle_results (
	battle_id, outcome, winning_team, duration_ns, turns, survivors, experience, gold, items, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.BattleID, r.Outcome.String(), r.WinningTeam, int64(r.Duration), r.Turns, string(survivors),
		r.Rewards.Experience, r.Rewards.Gold, string(items), toMillis(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save result %s: %w", r.BattleID, err)
	}
	return nil
}

func (s *Store) GetResult(ctx context.Context, battleID string) (battle.Result, error) {
	var (
		r                 = battle.Result{BattleID: battleID}
		outcome           string
		duration, created int64
		survivors, items  string
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT outcome, winning_team, duration_ns, turns, survivors, experience, gold, items, created_at
FROM battle_results WHERE battle_id = ?`, battleID).Scan(
		&outcome, &r.WinningTeam, &duration, &r.Turns, &survivors,
		&r.Rewards.Experience, &r.Rewards.Gold, &items, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return battle.Result{}, fmt.Errorf("result %s: %w", battleID, battle.ErrNotFound)
	}
	if err != nil {
		return battle.Result{}, fmt.Errorf("get result %s: %w", battleID, err)
	}
	if r.Outcome, err = battle.ParseOutcome(outcome); err != nil {
		return battle.Result{}, fmt.Errorf("get result %s: %w", battleID, err)
	}
	if err := json.Unmarshal([]byte(survivors), &r.Survivors); err != nil {
		return battle.Result{}, fmt.Errorf("get result %s: survivors: %w", battleID, err)
	}
	if err := json.Unmarshal([]byte(items), &r.Rewards.Items); err != nil {
		return battle.Result{}, fmt.Errorf("get result %s: items: %w", battleID, err)
	}
	if len(r.Rewards.Items) == 0 {
		r.Rewards.Items = nil
	}
	r.Duration = time.Duration(duration)
	r.CreatedAt = fromMillis(created)
	return r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
