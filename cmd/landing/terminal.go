package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AleksandrVishniakov/versta-2024/internal/chat"
	"github.com/AleksandrVishniakov/versta-2024/internal/domain"
	"github.com/AleksandrVishniakov/versta-2024/internal/nav"
)

const usage = `commands:
  order <email> <note...>   leave a request        confirm <code>   confirm it
  login                     open the login screen  email <address>  send a code
  code <code>               log in with the code   profile          open the profile
  rename <name...>          change your name       delete <id>      delete an order
  chat                      open support chat      close            close support chat
  say <text...>             send a chat message    admin            open the admin chat
  select <chatter id>       talk to a chatter      back | logout | help | quit`

// terminal is a line-oriented front end. Output from background hooks is
// serialised with the prompt.
type terminal struct {
	in  *bufio.Scanner
	out io.Writer
	mu  sync.Mutex
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	return &terminal{in: bufio.NewScanner(in), out: out}
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format+"\n", args...)
}

// Report implements nav.ErrorSink.
func (t *terminal) Report(_ context.Context, err error) {
	t.printf("! %s", err.Error())
}

func (t *terminal) hooks() nav.Hooks {
	return nav.Hooks{
		OnScreen: func(s nav.Screen) { t.printf("-- %s --", s) },
		OnMessage: func(m domain.Message) {
			t.printf("[%s] #%d: %s", m.CreatedAt.Local().Format("15:04"), m.SenderID, m.Text)
		},
		OnChatters: func(chatters []domain.Chatter) {
			for _, c := range chatters {
				t.printf("  chatter #%d (unread %d)", c.ID, c.UnreadCount)
			}
		},
		OnUnread: func(n int) {
			if n > 0 {
				t.printf("(%d unread support messages)", n)
			}
		},
	}
}

func (t *terminal) run(ctx context.Context, ctrl *nav.Controller) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for t.in.Scan() {
			lines <- t.in.Text()
		}
	}()

	t.printf("%s", usage)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !t.exec(ctx, ctrl, line) {
				return
			}
		}
	}
}

// exec runs one command line and reports whether to keep going. Failures
// have already been shown through Report.
func (t *terminal) exec(ctx context.Context, ctrl *nav.Controller, line string) bool {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "":
	case "help":
		t.printf("%s", usage)
	case "quit", "exit":
		return false

	case "order":
		email, note, _ := strings.Cut(rest, " ")
		if id, err := ctrl.SubmitOrder(ctx, email, note); err == nil {
			t.printf("order #%d created, check your mail for the code", id)
		}
	case "confirm":
		if ctrl.ConfirmOrder(ctx, rest) == nil {
			t.printf("order confirmed, logged in as %s", ctrl.Identity().Email)
		}

	case "login":
		ctrl.Dispatch(ctx, nav.IntentOpenLogin)
	case "email":
		if ctrl.RequestCode(ctx, rest) == nil {
			t.printf("code sent to %s", rest)
		}
	case "code":
		if ctrl.ConfirmCode(ctx, rest) == nil {
			t.showProfile(ctx, ctrl)
		}

	case "profile":
		if ctrl.Dispatch(ctx, nav.IntentOpenProfile) == nil {
			t.showProfile(ctx, ctrl)
		}
	case "rename":
		if ctrl.Rename(ctx, rest) == nil {
			t.showProfile(ctx, ctrl)
		}
	case "delete":
		id, err := strconv.Atoi(rest)
		if err != nil {
			t.printf("! order id must be a number")
			break
		}
		if orders, err := ctrl.DeleteOrder(ctx, id); err == nil {
			t.showOrders(orders)
		}

	case "chat":
		if entries, err := ctrl.OpenSupportChat(ctx); err == nil {
			t.showTimeline(entries)
		}
	case "close":
		ctrl.CloseSupportChat(ctx)
	case "say":
		ctrl.SendMessage(ctx, rest)
	case "admin":
		ctrl.Dispatch(ctx, nav.IntentOpenAdminChat)
	case "select":
		id, err := strconv.Atoi(rest)
		if err != nil {
			t.printf("! chatter id must be a number")
			break
		}
		if entries, err := ctrl.SelectChatter(ctx, id); err == nil {
			t.showTimeline(entries)
		}

	case "back":
		ctrl.Dispatch(ctx, nav.IntentBack)
	case "logout":
		ctrl.Dispatch(ctx, nav.IntentLogout)

	default:
		t.printf("unknown command %q, try help", cmd)
	}
	return true
}

func (t *terminal) showProfile(ctx context.Context, ctrl *nav.Controller) {
	view, err := ctrl.LoadProfile(ctx)
	if err != nil {
		return
	}

	p := view.Profile
	name := p.Name
	if name == "" {
		name = "(no name)"
	}
	t.printf("%s <%s> %s, since %s", name, p.Email, p.Role, p.CreatedAt.Local().Format(time.DateOnly))
	t.showOrders(view.Orders)
}

func (t *terminal) showOrders(orders []domain.Order) {
	if len(orders) == 0 {
		t.printf("  no orders")
		return
	}
	for _, o := range orders {
		t.printf("  order #%d [%s] %s", o.ID, o.Status, o.Note)
	}
}

func (t *terminal) showTimeline(entries []chat.Entry) {
	for _, e := range entries {
		if e.IsDayMarker() {
			t.printf("----- %s -----", e.Day.Format("Mon, 02 Jan 2006"))
			continue
		}
		t.printf("[%s] #%d: %s", e.Message.CreatedAt.Local().Format("15:04"), e.Message.SenderID, e.Message.Text)
	}
}
