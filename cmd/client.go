package cmd

import (
	"context"
	"fmt"
	"io"
	"tarabot/internal/core/domain"
	"tarabot/internal/ipc"
	"text/tabwriter"
	"time"
)

const requestTimeout = 10 * time.Second

// request sends a single action to the bot listening on socketPath.
func request(ctx context.Context, socketPath string, action ipc.ActionMessage) (ipc.ResponseMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	client, err := ipc.Dial(ctx, socketPath)
	if err != nil {
		return ipc.ResponseMessage{}, fmt.Errorf("is the bot running? %w", err)
	}

	resp, err := client.SendAction(ctx, action)
	if closeErr := client.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return ipc.ResponseMessage{}, err
	}

	if resp.Kind == ipc.ResponseActionFailed {
		return resp, fmt.Errorf("bot reported failure: %s", resp.Error)
	}

	return resp, nil
}

func fetchLogs(ctx context.Context, socketPath string, lower time.Time, upper *time.Time) ([]domain.LoggedCommandEvent, error) {
	resp, err := request(ctx, socketPath, ipc.GetCommandLogs(lower, upper))
	if err != nil {
		return nil, err
	}

	if resp.Kind != ipc.ResponseCommandLogs {
		return nil, fmt.Errorf("%w: %s", ipc.ErrUnexpectedResponse, resp.Kind)
	}

	return resp.CommandLogs, nil
}

func printLogs(w io.Writer, events []domain.LoggedCommandEvent) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCOMMAND\tUSER\tCHANNEL\tGUILD")

	for _, e := range events {
		guild := "DM"
		if e.CalledFromGuild {
			guild = e.GuildName
			if guild == "" {
				guild = e.GuildID
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s (%s)\t%s\t%s\n",
			e.Time.Local().Format(time.DateTime), e.Name, e.UserName, e.UserID, e.ChannelID, guild)
	}

	return tw.Flush()
}
