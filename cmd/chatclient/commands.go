package main

import (
	"errors"
	"strconv"
	"strings"
)

type commandKind int

const (
	cmdSay commandKind = iota + 1
	cmdFile
	cmdLink
	cmdDownload
	cmdGroup
	cmdHistory
	cmdHelp
	cmdQuit
)

type command struct {
	kind commandKind
	// text is the message, file path or URL.
	text string
	// extra is the caption or link title.
	extra string
	id    int64
}

var errUnknownCommand = errors.New("unknown command, try /help")

func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdSay, text: line}, nil
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "/file":
		path, caption, _ := strings.Cut(rest, " ")
		if path == "" {
			return command{}, errors.New("usage: /file <path> [caption]")
		}
		return command{kind: cmdFile, text: path, extra: strings.TrimSpace(caption)}, nil
	case "/link":
		link, title, _ := strings.Cut(rest, " ")
		if link == "" {
			return command{}, errors.New("usage: /link <url> [title]")
		}
		return command{kind: cmdLink, text: link, extra: strings.TrimSpace(title)}, nil
	case "/download":
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || id <= 0 {
			return command{}, errors.New("usage: /download <message id>")
		}
		return command{kind: cmdDownload, id: id}, nil
	case "/group":
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || id <= 0 {
			return command{}, errors.New("usage: /group <group id>")
		}
		return command{kind: cmdGroup, id: id}, nil
	case "/history":
		return command{kind: cmdHistory}, nil
	case "/help":
		return command{kind: cmdHelp}, nil
	case "/quit", "/exit":
		return command{kind: cmdQuit}, nil
	}
	return command{}, errUnknownCommand
}

const helpText = `commands:
  <text>                  send a message
  /file <path> [caption]  upload and share a file
  /link <url> [title]     share a link
  /download <id>          save the attachment of message <id>
  /group <id>             switch to another group
  /history                print the timeline again
  /quit                   leave`
