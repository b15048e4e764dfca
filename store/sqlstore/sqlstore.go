// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/danielhkuo/livepoll/auth"
	"github.com/danielhkuo/livepoll/db"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/poll"
	"github.com/danielhkuo/livepoll/store"
)

type storeImpl struct {
	conn    *sql.DB
	dialect db.Dialect
	opts    store.Options
}

// New wraps an open database whose schema has been created with
// db.CreateSchema.
func New(conn *sql.DB, dialect db.Dialect, opts store.Options) store.Store {
	opts = opts.WithDefaults()
	now := opts.Now
	// Match the stored precision so values read back compare equal
	opts.Now = func() time.Time { return now().Truncate(time.Microsecond) }

	return &storeImpl{
		conn:    conn,
		dialect: dialect,
		opts:    opts,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) CreatePoll(ctx context.Context, p store.NewPoll) (models.Poll, error) {
	if err := ctx.Err(); err != nil {
		return models.Poll{}, store.Transient("create poll", err)
	}
	p, err := poll.NormalizeNewPoll(p)
	if err != nil {
		return models.Poll{}, err
	}

	now := s.opts.Now()
	if p.ExpiresAt != nil {
		expires := p.ExpiresAt.Truncate(time.Microsecond)
		p.ExpiresAt = &expires
	}
	for attempt := 0; attempt < store.MaxCodeAttempts; attempt++ {
		code, err := s.opts.GenerateCode()
		if err != nil {
			return models.Poll{}, store.Transient("generate room code", err)
		}

		created := models.Poll{
			RoomCode:  code,
			Question:  p.Question,
			Options:   p.Options,
			State:     models.StateWaiting,
			HostKey:   p.HostKey,
			CreatedAt: now,
			ExpiresAt: p.ExpiresAt,
		}
		err = s.insertPoll(ctx, created)
		if db.IsUniqueViolation(err) {
			continue
		}
		if err != nil {
			return models.Poll{}, store.Transient("create poll", err)
		}
		return created, nil
	}
	return models.Poll{}, fmt.Errorf("%w: no free room code after %d attempts", store.ErrTransient, store.MaxCodeAttempts)
}

func (s *storeImpl) Snapshot(ctx context.Context, code string) (models.Snapshot, error) {
	var snap models.Snapshot
	err := s.withPoll(ctx, "snapshot", code, false, func(tx *sql.Tx, p *models.Poll) error {
		var err error
		snap, err = s.snapshot(ctx, tx, *p)
		return err
	})
	return snap, err
}

func (s *storeImpl) Join(ctx context.Context, code, nickname, connID string) (store.JoinResult, error) {
	nickname, err := poll.NormalizeNickname(nickname)
	if err != nil {
		return store.JoinResult{}, err
	}
	if connID == "" {
		return store.JoinResult{}, fmt.Errorf("%w: connection reference is required", store.ErrInvalidInput)
	}

	var res store.JoinResult
	err = s.withPoll(ctx, "join", code, true, func(tx *sql.Tx, p *models.Poll) error {
		existing, err := s.participant(ctx, tx, p.RoomCode, nickname)
		if err != nil {
			return err
		}
		if existing != nil && existing.Connected {
			return fmt.Errorf("%w: %q is connected", store.ErrNicknameTaken, nickname)
		}
		if existing == nil && s.opts.MaxParticipants > 0 {
			connected, err := s.connectedCount(ctx, tx, p.RoomCode)
			if err != nil {
				return err
			}
			if connected >= s.opts.MaxParticipants {
				return fmt.Errorf("%w: %d participants connected", store.ErrRoomFull, s.opts.MaxParticipants)
			}
		}
		if err := s.checkUnbound(ctx, tx, connID); err != nil {
			return err
		}

		now := s.opts.Now()
		if existing != nil {
			_, err = s.exec(ctx, tx, `UPDATE participant SET conn_id = ?, connected = ?, last_active = ?
				WHERE poll_code = ? AND nickname = ?`,
				connID, true, micros(now), p.RoomCode, nickname)
			existing.ConnID = connID
			existing.Connected = true
			existing.LastActive = now
			res.Participant = *existing
			res.Rejoined = true
		} else {
			_, err = s.exec(ctx, tx, `INSERT INTO participant (poll_code, nickname, conn_id, connected, joined_at, last_active)
				VALUES (?, ?, ?, ?, ?, ?)`,
				p.RoomCode, nickname, connID, true, micros(now), micros(now))
			res.Participant = models.Participant{
				RoomCode:   p.RoomCode,
				Nickname:   nickname,
				ConnID:     connID,
				Connected:  true,
				JoinedAt:   now,
				LastActive: now,
			}
		}
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: connection already joined a poll", store.ErrInvalidState)
		}
		if err != nil {
			return err
		}

		if err := s.bumpRevision(ctx, tx, p); err != nil {
			return err
		}
		res.Snapshot, err = s.snapshot(ctx, tx, *p)
		return err
	})
	return res, err
}

func (s *storeImpl) AttachHost(ctx context.Context, code, hostKey, connID string) (models.Snapshot, error) {
	if connID == "" {
		return models.Snapshot{}, fmt.Errorf("%w: connection reference is required", store.ErrInvalidInput)
	}

	var snap models.Snapshot
	err := s.withPoll(ctx, "attach host", code, true, func(tx *sql.Tx, p *models.Poll) error {
		if err := auth.ValidateHostKey(p.HostKey, hostKey); err != nil {
			return fmt.Errorf("%w: host key does not match", store.ErrUnauthorized)
		}
		if p.HostConn != connID {
			if err := s.checkUnbound(ctx, tx, connID); err != nil {
				return err
			}
			_, err := s.exec(ctx, tx, `UPDATE poll SET host_conn = ? WHERE code = ?`, connID, p.RoomCode)
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: connection already joined a poll", store.ErrInvalidState)
			}
			if err != nil {
				return err
			}
			p.HostConn = connID
		}
		var err error
		snap, err = s.snapshot(ctx, tx, *p)
		return err
	})
	return snap, err
}

func (s *storeImpl) SubmitVote(ctx context.Context, code, nickname, connID string, option int) (store.VoteResult, error) {
	var res store.VoteResult
	err := s.withPoll(ctx, "submit vote", code, true, func(tx *sql.Tx, p *models.Poll) error {
		if err := poll.CheckOpen(*p); err != nil {
			return err
		}
		part, err := s.participant(ctx, tx, p.RoomCode, nickname)
		if err != nil {
			return err
		}
		if part == nil {
			return fmt.Errorf("%w: %q", store.ErrNotAMember, nickname)
		}
		if connID == "" || part.ConnID != connID {
			return fmt.Errorf("%w: connection is not bound to %q", store.ErrNotAMember, nickname)
		}
		if err := poll.CheckOption(*p, option); err != nil {
			return err
		}

		now := s.opts.Now()
		if part.Vote == nil {
			part.Vote = &models.Vote{Option: option, CastAt: now, UpdatedAt: now}
			_, err = s.exec(ctx, tx, `UPDATE participant SET vote_option = ?, voted_at = ?, vote_updated_at = ?, last_active = ?
				WHERE poll_code = ? AND nickname = ?`,
				option, micros(now), micros(now), micros(now), p.RoomCode, nickname)
		} else {
			part.Vote.Option = option
			part.Vote.UpdatedAt = now
			_, err = s.exec(ctx, tx, `UPDATE participant SET vote_option = ?, vote_updated_at = ?, last_active = ?
				WHERE poll_code = ? AND nickname = ?`,
				option, micros(now), micros(now), p.RoomCode, nickname)
		}
		if err != nil {
			return err
		}
		if err := s.bumpRevision(ctx, tx, p); err != nil {
			return err
		}

		results, err := s.results(ctx, tx, *p)
		if err != nil {
			return err
		}
		res = store.VoteResult{Vote: *part.Vote, Results: results, Revision: p.Revision}
		return nil
	})
	return res, err
}

func (s *storeImpl) ChangeState(ctx context.Context, code string, state models.PollState, hostKey string) (store.StateChange, error) {
	var change store.StateChange
	err := s.withPoll(ctx, "change state", code, true, func(tx *sql.Tx, p *models.Poll) error {
		previous, err := poll.Transition(p, state, hostKey)
		if err != nil {
			return err
		}
		if _, err := s.exec(ctx, tx, `UPDATE poll SET state = ? WHERE code = ?`, string(p.State), p.RoomCode); err != nil {
			return err
		}
		if err := s.bumpRevision(ctx, tx, p); err != nil {
			return err
		}
		change = store.StateChange{
			Previous: previous,
			Current:  p.State,
			Revision: p.Revision,
			At:       s.opts.Now(),
		}
		return nil
	})
	return change, err
}

func (s *storeImpl) Disconnect(ctx context.Context, connID string) (store.PresenceChange, bool, error) {
	if err := ctx.Err(); err != nil {
		return store.PresenceChange{}, false, store.Transient("disconnect", err)
	}
	code, nickname, host, err := s.binding(ctx, connID)
	if err != nil {
		return store.PresenceChange{}, false, store.Transient("disconnect", err)
	}
	if code == "" {
		return store.PresenceChange{}, false, nil
	}

	var change store.PresenceChange
	found := false
	err = s.withPoll(ctx, "disconnect", code, true, func(tx *sql.Tx, p *models.Poll) error {
		now := s.opts.Now()
		if host {
			if p.HostConn != connID {
				return nil
			}
			if _, err := s.exec(ctx, tx, `UPDATE poll SET host_conn = NULL WHERE code = ?`, p.RoomCode); err != nil {
				return err
			}
			connected, err := s.connectedCount(ctx, tx, p.RoomCode)
			if err != nil {
				return err
			}
			found = true
			change = store.PresenceChange{
				RoomCode:       p.RoomCode,
				Host:           true,
				ConnectedCount: connected,
				Revision:       p.Revision,
				At:             now,
				RemoveEligible: connected == 0,
			}
			return nil
		}

		part, err := s.participant(ctx, tx, p.RoomCode, nickname)
		if err != nil || part == nil || part.ConnID != connID {
			return err
		}
		found = true
		change, err = s.markDisconnected(ctx, tx, p, nickname, now)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return store.PresenceChange{}, false, nil
	}
	return change, found, err
}

func (s *storeImpl) Touch(ctx context.Context, connID string) error {
	if err := ctx.Err(); err != nil {
		return store.Transient("touch", err)
	}
	_, err := s.conn.ExecContext(ctx, s.dialect.Rebind(`UPDATE participant SET last_active = ? WHERE conn_id = ?`),
		micros(s.opts.Now()), connID)
	return store.Transient("touch", err)
}

func (s *storeImpl) MarkStale(ctx context.Context, before time.Time) ([]store.PresenceChange, error) {
	codes, err := s.codesWhere(ctx, `SELECT DISTINCT poll_code FROM participant
		WHERE connected = ? AND last_active < ? ORDER BY poll_code`, true, micros(before))
	if err != nil {
		return nil, store.Transient("mark stale", err)
	}

	var changes []store.PresenceChange
	for _, code := range codes {
		err := s.withPoll(ctx, "mark stale", code, true, func(tx *sql.Tx, p *models.Poll) error {
			nicknames, err := s.strings(ctx, tx, `SELECT nickname FROM participant
				WHERE poll_code = ? AND connected = ? AND last_active < ?
				ORDER BY joined_at, nickname`, p.RoomCode, true, micros(before))
			if err != nil {
				return err
			}
			now := s.opts.Now()
			for _, nickname := range nicknames {
				change, err := s.markDisconnected(ctx, tx, p, nickname, now)
				if err != nil {
					return err
				}
				changes = append(changes, change)
			}
			return nil
		})
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return changes, err
		}
	}
	return changes, nil
}

func (s *storeImpl) Purge(ctx context.Context, before time.Time) ([]store.PurgeResult, error) {
	codes, err := s.codesWhere(ctx, `SELECT DISTINCT poll_code FROM participant
		WHERE connected = ? AND last_active < ? ORDER BY poll_code`, false, micros(before))
	if err != nil {
		return nil, store.Transient("purge", err)
	}

	var purged []store.PurgeResult
	for _, code := range codes {
		err := s.withPoll(ctx, "purge", code, true, func(tx *sql.Tx, p *models.Poll) error {
			removed, err := s.strings(ctx, tx, `SELECT nickname FROM participant
				WHERE poll_code = ? AND connected = ? AND last_active < ?
				ORDER BY joined_at, nickname`, p.RoomCode, false, micros(before))
			if err != nil || len(removed) == 0 {
				return err
			}
			var votesRemoved int
			if err := tx.QueryRowContext(ctx, s.dialect.Rebind(`SELECT COUNT(*) FROM participant
				WHERE poll_code = ? AND connected = ? AND last_active < ? AND vote_option IS NOT NULL`),
				p.RoomCode, false, micros(before)).Scan(&votesRemoved); err != nil {
				return err
			}
			if _, err := s.exec(ctx, tx, `DELETE FROM participant
				WHERE poll_code = ? AND connected = ? AND last_active < ?`,
				p.RoomCode, false, micros(before)); err != nil {
				return err
			}
			if err := s.bumpRevision(ctx, tx, p); err != nil {
				return err
			}
			results, err := s.results(ctx, tx, *p)
			if err != nil {
				return err
			}
			purged = append(purged, store.PurgeResult{
				RoomCode:     p.RoomCode,
				Removed:      removed,
				VotesRemoved: votesRemoved,
				Results:      results,
				Revision:     p.Revision,
			})
			return nil
		})
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return purged, err
		}
	}
	return purged, nil
}

func (s *storeImpl) ExpiredPolls(ctx context.Context, now time.Time) ([]string, error) {
	codes, err := s.codesWhere(ctx, `SELECT code FROM poll
		WHERE expires_at IS NOT NULL AND expires_at <= ? ORDER BY code`, micros(now))
	if err != nil {
		return nil, store.Transient("expired polls", err)
	}
	return codes, nil
}

func (s *storeImpl) RemovePoll(ctx context.Context, code string) (uint64, error) {
	var revision uint64
	err := s.withPoll(ctx, "remove poll", code, true, func(tx *sql.Tx, p *models.Poll) error {
		for _, q := range []string{
			`DELETE FROM participant WHERE poll_code = ?`,
			`DELETE FROM poll_option WHERE poll_code = ?`,
			`DELETE FROM poll WHERE code = ?`,
		} {
			if _, err := s.exec(ctx, tx, q, p.RoomCode); err != nil {
				return err
			}
		}
		revision = p.Revision + 1
		return nil
	})
	return revision, err
}

func (s *storeImpl) Close() error {
	return s.conn.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// withPoll runs fn in a transaction holding the poll row. With lock unset the
// row is read without FOR UPDATE.
func (s *storeImpl) withPoll(ctx context.Context, op, code string, lock bool, fn func(tx *sql.Tx, p *models.Poll) error) error {
	if err := ctx.Err(); err != nil {
		return store.Transient(op, err)
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return store.Transient(op, err)
	}
	defer tx.Rollback()

	p, err := s.loadPoll(ctx, tx, code, lock)
	if err != nil {
		return store.Transient(op, err)
	}
	if err := fn(tx, &p); err != nil {
		return store.Transient(op, err)
	}
	if err := tx.Commit(); err != nil {
		return store.Transient(op, err)
	}
	return nil
}

func (s *storeImpl) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) (sql.Result, error) {
	return tx.ExecContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *storeImpl) insertPoll(ctx context.Context, p models.Poll) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var expires sql.NullInt64
	if p.ExpiresAt != nil {
		expires = sql.NullInt64{Int64: micros(*p.ExpiresAt), Valid: true}
	}
	_, err = s.exec(ctx, tx, `INSERT INTO poll (code, question, state, host_key, revision, created_at, expires_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		p.RoomCode, p.Question, string(p.State), p.HostKey, micros(p.CreatedAt), expires)
	if err != nil {
		return err
	}
	for i, label := range p.Options {
		if _, err := s.exec(ctx, tx, `INSERT INTO poll_option (poll_code, position, label) VALUES (?, ?, ?)`,
			p.RoomCode, i, label); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *storeImpl) loadPoll(ctx context.Context, tx *sql.Tx, code string, lock bool) (models.Poll, error) {
	query := `SELECT code, question, state, host_key, host_conn, revision, created_at, expires_at
		FROM poll WHERE code = ?`
	if lock {
		query += s.dialect.ForUpdate()
	}

	var (
		p         models.Poll
		state     string
		hostConn  sql.NullString
		revision  int64
		createdAt int64
		expiresAt sql.NullInt64
	)
	err := tx.QueryRowContext(ctx, s.dialect.Rebind(query), code).Scan(
		&p.RoomCode, &p.Question, &state, &p.HostKey, &hostConn, &revision, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("%w: poll %s", store.ErrNotFound, code)
	}
	if err != nil {
		return p, err
	}
	p.State = models.PollState(state)
	p.HostConn = hostConn.String
	p.Revision = uint64(revision)
	p.CreatedAt = fromMicros(createdAt)
	if expiresAt.Valid {
		t := fromMicros(expiresAt.Int64)
		p.ExpiresAt = &t
	}

	p.Options, err = s.strings(ctx, tx, `SELECT label FROM poll_option WHERE poll_code = ? ORDER BY position`, p.RoomCode)
	return p, err
}

// participant loads one participant, or nil when the nickname is unknown
func (s *storeImpl) participant(ctx context.Context, tx *sql.Tx, code, nickname string) (*models.Participant, error) {
	var (
		p          models.Participant
		connID     sql.NullString
		joinedAt   int64
		lastActive int64
		option     sql.NullInt64
		votedAt    sql.NullInt64
		updatedAt  sql.NullInt64
	)
	err := tx.QueryRowContext(ctx, s.dialect.Rebind(`SELECT poll_code, nickname, conn_id, connected, joined_at, last_active,
		vote_option, voted_at, vote_updated_at
		FROM participant WHERE poll_code = ? AND nickname = ?`), code, nickname).Scan(
		&p.RoomCode, &p.Nickname, &connID, &p.Connected, &joinedAt, &lastActive, &option, &votedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.ConnID = connID.String
	p.JoinedAt = fromMicros(joinedAt)
	p.LastActive = fromMicros(lastActive)
	if option.Valid {
		p.Vote = &models.Vote{
			Option:    int(option.Int64),
			CastAt:    fromMicros(votedAt.Int64),
			UpdatedAt: fromMicros(updatedAt.Int64),
		}
	}
	return &p, nil
}

// binding finds the poll connID is attached to. code is empty when it is
// not attached anywhere.
func (s *storeImpl) binding(ctx context.Context, connID string) (code, nickname string, host bool, err error) {
	err = s.conn.QueryRowContext(ctx, s.dialect.Rebind(`SELECT poll_code, nickname FROM participant WHERE conn_id = ?`),
		connID).Scan(&code, &nickname)
	if err == nil {
		return code, nickname, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", "", false, err
	}

	err = s.conn.QueryRowContext(ctx, s.dialect.Rebind(`SELECT code FROM poll WHERE host_conn = ?`),
		connID).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	return code, "", true, nil
}

// checkUnbound fails with ErrInvalidState when connID already serves any poll
func (s *storeImpl) checkUnbound(ctx context.Context, tx *sql.Tx, connID string) error {
	var n int
	err := tx.QueryRowContext(ctx, s.dialect.Rebind(`SELECT
		(SELECT COUNT(*) FROM participant WHERE conn_id = ?) +
		(SELECT COUNT(*) FROM poll WHERE host_conn = ?)`), connID, connID).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: connection already joined a poll", store.ErrInvalidState)
	}
	return nil
}

func (s *storeImpl) markDisconnected(ctx context.Context, tx *sql.Tx, p *models.Poll, nickname string, now time.Time) (store.PresenceChange, error) {
	if _, err := s.exec(ctx, tx, `UPDATE participant SET conn_id = NULL, connected = ?, last_active = ?
		WHERE poll_code = ? AND nickname = ?`, false, micros(now), p.RoomCode, nickname); err != nil {
		return store.PresenceChange{}, err
	}
	if err := s.bumpRevision(ctx, tx, p); err != nil {
		return store.PresenceChange{}, err
	}
	connected, err := s.connectedCount(ctx, tx, p.RoomCode)
	if err != nil {
		return store.PresenceChange{}, err
	}
	return store.PresenceChange{
		RoomCode:       p.RoomCode,
		Nickname:       nickname,
		ConnectedCount: connected,
		Revision:       p.Revision,
		At:             now,
	}, nil
}

func (s *storeImpl) bumpRevision(ctx context.Context, tx *sql.Tx, p *models.Poll) error {
	if _, err := s.exec(ctx, tx, `UPDATE poll SET revision = revision + 1 WHERE code = ?`, p.RoomCode); err != nil {
		return err
	}
	p.Revision++
	return nil
}

func (s *storeImpl) connectedCount(ctx context.Context, tx *sql.Tx, code string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, s.dialect.Rebind(`SELECT COUNT(*) FROM participant WHERE poll_code = ? AND connected = ?`),
		code, true).Scan(&n)
	return n, err
}

func (s *storeImpl) results(ctx context.Context, tx *sql.Tx, p models.Poll) (models.Results, error) {
	rows, err := tx.QueryContext(ctx, s.dialect.Rebind(`SELECT vote_option FROM participant
		WHERE poll_code = ? AND vote_option IS NOT NULL`), p.RoomCode)
	if err != nil {
		return models.Results{}, err
	}
	defer rows.Close()

	var votes []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return models.Results{}, err
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return models.Results{}, err
	}
	return poll.Tally(len(p.Options), votes), nil
}

func (s *storeImpl) snapshot(ctx context.Context, tx *sql.Tx, p models.Poll) (models.Snapshot, error) {
	results, err := s.results(ctx, tx, p)
	if err != nil {
		return models.Snapshot{}, err
	}
	connected, err := s.connectedCount(ctx, tx, p.RoomCode)
	if err != nil {
		return models.Snapshot{}, err
	}
	return models.Snapshot{Poll: p, Results: results, ConnectedCount: connected}, nil
}

func (s *storeImpl) strings(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (s *storeImpl) codesWhere(ctx context.Context, query string, args ...any) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func micros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}
