package main

import (
	"context"
	"strings"

	"github.com/c360/secplugin/dispatch"
	"github.com/c360/secplugin/message"
	"github.com/c360/secplugin/sender"
)

// registerHandlers installs the built-in commands.
func registerHandlers(reg *dispatch.Registry, snd *sender.Sender) error {
	if err := reg.Handle(`ping`, func(ctx context.Context, msg *message.Message) error {
		_, err := snd.Reply(ctx, msg, "pong")
		return err
	}); err != nil {
		return err
	}

	if err := reg.HandleMatch(`echo\s+(.+)`, func(ctx context.Context, msg *message.Message, m dispatch.Match) error {
		_, err := snd.Reply(ctx, msg, m.Group(1))
		return err
	}); err != nil {
		return err
	}

	// Group listing waits on a relay round trip, so it runs on the pool.
	return reg.Handle(`groups`, func(ctx context.Context, msg *message.Message) error {
		groups, err := snd.GroupList(ctx, msg.Get(message.Account, ""))
		if err != nil {
			return err
		}
		text := "no groups"
		if len(groups) > 0 {
			text = strings.Join(groups, "\n")
		}
		_, err = snd.Reply(ctx, msg, text)
		return err
	}, dispatch.Pooled())
}
