package notifier

import (
	"context"
	"errors"

	"upsmon/internal/report"
	"upsmon/internal/storage"
	kit "upsmon/internal/transport"
	"upsmon/internal/transport/telegram/router"
	logx "upsmon/pkg/logx"
)

var markdown = &kit.SendOptions{ParseMode: "Markdown"}

// Commands returns the bot commands. /status reads statePath on every call.
func Commands(statePath string) []router.Command {
	return []router.Command{
		{
			Name:        "start",
			Description: "Show available commands",
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, report.StartText, markdown)
			},
		},
		{
			Name:        "status",
			Description: "Current UPS status",
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, statusReply(statePath, req.Logger), markdown)
			},
		},
		{
			Name:        "help",
			Description: "Help and information",
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, report.HelpText, markdown)
			},
		},
	}
}

func statusReply(statePath string, log logx.Logger) string {
	msg, err := report.StatusFromFile(statePath)
	switch {
	case errors.Is(err, storage.ErrNoData):
		return report.NoDataText
	case err != nil:
		log.Warn("status read failed", logx.String("path", statePath), logx.Err(err))
		return report.StatusFailedText(err)
	}
	return msg
}
