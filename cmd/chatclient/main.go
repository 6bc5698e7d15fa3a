// Command chatclient is a terminal chat surface for study groups.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"studygroup-chat/internal/apiclient"
	"studygroup-chat/internal/attachments"
	"studygroup-chat/internal/auth"
	"studygroup-chat/internal/chatview"
	"studygroup-chat/internal/config"
	"studygroup-chat/internal/history"
	"studygroup-chat/internal/realtime"
)

func main() {
	fs := pflag.NewFlagSet("chatclient", pflag.ExitOnError)
	config.ClientFlags(fs)
	cfg, err := config.LoadClient(fs, os.Args[1:])
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("chatclient: %v", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Client) error {
	tokenFile := cfg.TokenFile
	if tokenFile == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			tokenFile = filepath.Join(dir, "studychat", "token")
		}
	}
	tokens := apiclient.Chain{
		apiclient.StaticToken(cfg.Token),
		apiclient.EnvToken("STUDYCHAT_TOKEN"),
		apiclient.FileTokenStore{Path: tokenFile},
	}

	userID := cfg.UserID
	if userID == 0 {
		token, err := tokens.Token()
		if err != nil {
			return fmt.Errorf("no credential: pass --token or store one in %s", tokenFile)
		}
		if userID, err = auth.UserIDFromToken(token); err != nil {
			return fmt.Errorf("read user id from token: %w", err)
		}
	}

	api, err := apiclient.New(cfg.APIURL, tokens)
	if err != nil {
		return err
	}

	rtCfg := realtime.DefaultConfig(cfg.BrokerURL)
	rtCfg.ReconnectDelay = cfg.ReconnectDelay
	rtCfg.MaxReconnectAttempts = cfg.MaxReconnectAttempts
	rtCfg.HeartbeatOutgoing = cfg.Heartbeat
	rtCfg.HeartbeatIncoming = cfg.Heartbeat
	session := realtime.New(rtCfg, realtime.WithTokenSource(tokens))
	defer session.Disconnect()

	out := newPrinter(color.Output, userID)
	surfaces := chatview.NewSurfaces(session)
	view := surfaces.NewView(userID, history.NewLoader(api), attachments.New(api, cfg.DownloadDir),
		chatview.WithNotices(out.notice),
		chatview.WithLiveMessages(out.live),
	)
	defer view.Close()

	if cfg.GroupID != 0 {
		openGroup(ctx, view, out, cfg.GroupID)
	} else {
		out.info("no group selected, use /group <id>")
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "" {
				continue
			}
			cmd, err := parseCommand(line)
			if err != nil {
				out.fail(err)
				continue
			}
			if cmd.kind == cmdQuit {
				return nil
			}
			execute(ctx, view, out, cmd)
		}
	}
}

func openGroup(ctx context.Context, view *chatview.View, out *printer, groupID int64) {
	out.info("opening group %d", groupID)
	out.reset()
	if err := view.Activate(ctx, groupID); err != nil {
		return
	}
	out.backlog(view.Messages())
}

func execute(ctx context.Context, view *chatview.View, out *printer, cmd command) {
	switch cmd.kind {
	case cmdSay:
		if err := view.SendText(cmd.text); err != nil && !errors.Is(err, chatview.ErrNotConnected) {
			out.fail(err)
		}
	case cmdFile:
		f, err := os.Open(cmd.text)
		if err != nil {
			out.fail(err)
			return
		}
		defer f.Close()
		desc, err := view.SendFile(ctx, filepath.Base(cmd.text), f, attachments.Metadata{Caption: cmd.extra})
		if err == nil {
			out.info("uploaded %s (%s)", desc.FileName, humanSize(desc.FileSize))
		} else if errors.Is(err, chatview.ErrNoActiveGroup) {
			out.fail(err)
		}
	case cmdLink:
		if _, err := view.ShareLink(ctx, cmd.text, cmd.extra); errors.Is(err, chatview.ErrNoActiveGroup) {
			out.fail(err)
		}
	case cmdDownload:
		for _, msg := range view.Messages() {
			if msg.ID != cmd.id {
				continue
			}
			path, err := view.Download(ctx, msg)
			switch {
			case errors.Is(err, chatview.ErrNotAFile):
				out.fail(err)
			case err == nil:
				out.info("saved %s", path)
			}
			return
		}
		out.fail(fmt.Errorf("message %d is not in the timeline", cmd.id))
	case cmdGroup:
		openGroup(ctx, view, out, cmd.id)
	case cmdHistory:
		for _, msg := range view.Messages() {
			out.message(msg)
		}
	case cmdHelp:
		out.info(helpText)
	}
}
