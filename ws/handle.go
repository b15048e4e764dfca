// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ws

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/store"
)

func (c *Client) handle(msg models.ClientMessage) {
	ctx := context.Background()

	switch msg.Type {
	case models.MsgPing:
		c.reply(models.ServerMessage{Type: models.MsgPong})

	case models.MsgJoin:
		if c.role != roleNone {
			c.replyErr(fmt.Errorf("%w: connection already joined", store.ErrInvalidState))
			return
		}
		res, err := c.engine.Join(ctx, c.code, msg.Nickname, c)
		if err != nil {
			c.replyErr(err)
			return
		}
		c.role = roleParticipant
		c.nickname = res.Participant.Nickname

		reply := models.ServerMessage{
			Type:        models.MsgJoined,
			Participant: &res.Participant,
			Vote:        res.Participant.Vote,
			Snapshot:    &res.Snapshot,
		}
		if res.Rejoined {
			reply.Type = models.MsgRejoined
		}
		c.reply(reply)

	case models.MsgHost:
		if c.role != roleNone {
			c.replyErr(fmt.Errorf("%w: connection already joined", store.ErrInvalidState))
			return
		}
		snap, err := c.engine.AttachHost(ctx, c.code, msg.HostKey, c)
		if err != nil {
			c.replyErr(err)
			return
		}
		c.role = roleHost
		c.hostKey = msg.HostKey
		c.reply(models.ServerMessage{Type: models.MsgHosting, Snapshot: &snap})

	case models.MsgVote:
		if c.role != roleParticipant {
			c.replyErr(fmt.Errorf("%w: join before voting", store.ErrNotAMember))
			return
		}
		if msg.Option == nil {
			c.replyErr(fmt.Errorf("%w: option is required", store.ErrInvalidInput))
			return
		}
		res, err := c.engine.Vote(ctx, c.code, c.nickname, c.id, *msg.Option)
		if err != nil {
			if errors.Is(err, store.ErrNotAMember) {
				// The store released this connection, as after a staleness sweep
				c.role = roleNone
				c.nickname = ""
			}
			c.replyErr(err)
			return
		}
		c.reply(models.ServerMessage{Type: models.MsgVoted, Option: &res.Vote.Option})

	case models.MsgSetState:
		if c.role != roleHost {
			c.replyErr(c.engine.DenyStateChange(ctx, c.code, c.id))
			return
		}
		// Success is announced by the poll-state-changed broadcast
		if _, err := c.engine.ChangeState(ctx, c.code, msg.State, c.hostKey); err != nil {
			c.replyErr(err)
		}

	case models.MsgSync:
		snap, err := c.engine.Snapshot(ctx, c.code)
		if err != nil {
			c.replyErr(err)
			return
		}
		c.reply(models.ServerMessage{Type: models.MsgSnapshot, Snapshot: &snap})

	default:
		c.replyError("invalid_input", fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (c *Client) replyErr(err error) {
	c.replyError(store.Kind(err), err.Error())
}

func (c *Client) replyError(kind, message string) {
	c.reply(models.ServerMessage{Type: models.MsgError, Kind: kind, Message: message})
}
