package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/logging"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
)

// responderDeadline bounds both the HTTP GET and the script-exec actions
// per §5's "auto-responder external actions carry a 10s wall-clock
// deadline" rule.
const responderDeadline = 10 * time.Second

// responderMaxOutput caps how much of a script's stdout is sent back as
// a reply, per §5's 1 MiB cap.
const responderMaxOutput = 1 << 20

// ResponderActionKind selects what an auto-responder rule does on match.
type ResponderActionKind string

const (
	ActionReply  ResponderActionKind = "reply"
	ActionHTTP   ResponderActionKind = "http"
	ActionScript ResponderActionKind = "script"
)

// ResponderRule is one auto-responder trigger (§4.4): a compiled message
// pattern paired with the action to take on match.
type ResponderRule struct {
	Pattern *Pattern
	Action  ResponderActionKind

	ReplyText string // ActionReply
	URL       string // ActionHTTP: GET this URL, first 500 bytes of body become the reply
	Script    string // ActionScript: path to an executable

	SkipIncompleteNodes bool // don't respond to nodes missing a long name
}

// Responder dispatches inbound text messages against a set of rules. It
// is event-driven (wired to session.WithInboundTextCallback) rather than
// ticked, since a trigger must fire on the message that caused it, not
// on the next poll.
type Responder struct {
	rules  []ResponderRule
	sess   Sender
	store  store.Store
	logger *zap.Logger
}

// NewResponder builds a Responder from a rule set.
func NewResponder(rules []ResponderRule, sess Sender, st store.Store) *Responder {
	return &Responder{
		rules:  rules,
		sess:   sess,
		store:  st,
		logger: logging.With(zap.String("component", "auto-responder")),
	}
}

// HandleMessage is the session callback entry point.
func (r *Responder) HandleMessage(msg store.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), responderDeadline)
	defer cancel()

	for _, rule := range r.rules {
		if rule.Pattern == nil {
			continue
		}
		params, ok := rule.Pattern.Match(msg.Text)
		if !ok {
			continue
		}
		if rule.SkipIncompleteNodes {
			if n, err := r.store.GetNode(ctx, msg.From); err != nil || n == nil || n.LongName == "" {
				continue
			}
		}
		r.dispatch(ctx, rule, msg, params)
		return // first matching rule wins
	}
}

func (r *Responder) dispatch(ctx context.Context, rule ResponderRule, msg store.Message, params map[string]string) {
	var reply string
	var err error

	switch rule.Action {
	case ActionReply:
		reply = rule.ReplyText
	case ActionHTTP:
		reply, err = fetchHTTPReply(ctx, rule.URL)
	case ActionScript:
		reply, err = runScriptReply(ctx, rule.Script, params)
	default:
		return
	}
	if err != nil {
		r.logger.Warn("auto-responder action failed", zap.String("action", string(rule.Action)), zap.Error(err))
		return
	}
	if reply == "" {
		return
	}

	dest := msg.From
	channel := uint32(0)
	if msg.Channel >= 0 {
		dest = BroadcastNodeNum
		channel = uint32(msg.Channel)
	}
	if _, err := r.sess.SendText(ctx, dest, channel, reply, false); err != nil {
		r.logger.Warn("auto-responder reply send failed", zap.Error(err))
	}
}

func fetchHTTPReply(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("scheduler: build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("scheduler: http get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 500))
	if err != nil {
		return "", fmt.Errorf("scheduler: read response: %w", err)
	}
	return string(body), nil
}

func runScriptReply(ctx context.Context, path string, params map[string]string) (string, error) {
	cmd := exec.CommandContext(ctx, path)
	for name, value := range params {
		cmd.Env = append(cmd.Env, fmt.Sprintf("PARAM_%s=%s", name, value))
	}
	var out bytes.Buffer
	cmd.Stdout = &limitedWriter{buf: &out, max: responderMaxOutput}
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("scheduler: run script %s: %w", path, err)
	}
	return out.String(), nil
}

// limitedWriter caps how many bytes it accepts, silently dropping the
// remainder, so a misbehaving script can't exhaust memory.
type limitedWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	remaining := w.max - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	return w.buf.Write(p)
}
