package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"studygroup-chat/internal/chatview"
	"studygroup-chat/internal/models"
)

// printer serialises terminal output from the reader goroutine and the prompt loop.
// seen holds the ids printed for the open group, so a live message that also shows up
// in the backlog is printed once.
type printer struct {
	mu     sync.Mutex
	out    io.Writer
	userID int64
	seen   map[int64]struct{}

	own    *color.Color
	other  *color.Color
	system *color.Color
	alert  *color.Color
}

func newPrinter(out io.Writer, userID int64) *printer {
	return &printer{
		out:    out,
		userID: userID,
		seen:   make(map[int64]struct{}),
		own:    color.New(color.FgGreen),
		other:  color.New(color.FgCyan),
		system: color.New(color.FgYellow),
		alert:  color.New(color.FgRed, color.Bold),
	}
}

// reset forgets printed ids when another group is opened.
func (p *printer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = make(map[int64]struct{})
}

// live prints a message pushed by the broker unless it was printed already.
func (p *printer) live(msg models.ChatMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed(msg.ID) {
		return
	}
	p.write(msg)
}

// backlog prints the group's timeline, skipping messages already shown live.
func (p *printer) backlog(msgs []models.ChatMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, msg := range msgs {
		if !p.printed(msg.ID) {
			p.write(msg)
		}
	}
}

// message prints msg unconditionally.
func (p *printer) message(msg models.ChatMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.write(msg)
}

// printed records id and reports whether it had been printed before.
func (p *printer) printed(id int64) bool {
	if id == 0 {
		return false
	}
	if _, ok := p.seen[id]; ok {
		return true
	}
	p.seen[id] = struct{}{}
	return false
}

func (p *printer) write(msg models.ChatMessage) {
	c := p.other
	if msg.Sender.ID == p.userID {
		c = p.own
	}
	name := msg.Sender.Name
	if name == "" {
		name = fmt.Sprintf("user %d", msg.Sender.ID)
	}
	stamp := ""
	if !msg.Timestamp.IsZero() {
		stamp = msg.Timestamp.Local().Format("15:04") + " "
	}
	c.Fprintf(p.out, "%s#%d %s: ", stamp, msg.ID, name)
	fmt.Fprintln(p.out, describe(msg))
}

func (p *printer) info(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.system.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) notice(n chatview.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alert.Fprintf(p.out, "! %s: %v\n", n.Text(), n.Err)
}

func (p *printer) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alert.Fprintf(p.out, "! %v\n", err)
}

func describe(msg models.ChatMessage) string {
	switch {
	case msg.Type == models.MessageTypeLink && msg.FileName != "":
		return fmt.Sprintf("%s <%s>", msg.FileName, msg.Content)
	case msg.Type.IsFile():
		return fmt.Sprintf("%s [%s %s, %s]", msg.Content, msg.Type, msg.FileName, humanSize(msg.FileSize))
	}
	return msg.Content
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
