// Package chat performs single request/response exchanges against a remote
// chat-completions API on top of a session store. An exchange is atomic:
// either both the user message and the assistant reply are persisted, or
// neither is.
package chat

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/harun/gpchat/internal/config"
	"github.com/harun/gpchat/pkg/session"
)

// Runner orchestrates one exchange: append the user's message, call the API
// with the full conversation, append the reply, persist everything.
type Runner struct {
	cfg    *config.Config
	client Completer
}

// NewRunner builds a Runner. A nil client gets the default HTTP client for
// the configured endpoint and credentials.
func NewRunner(cfg *config.Config, client Completer) *Runner {
	if client == nil {
		client = NewClient(cfg.APIBase, cfg.APIKey)
	}
	return &Runner{cfg: cfg, client: client}
}

// SendChat performs one exchange and returns the assistant's reply text.
//
// The session store is opened (taking the directory lock), the user message
// is buffered, and the whole conversation goes to the API. Only after a
// successful reply is anything flushed to disk; a failed call leaves the
// session log exactly as it was. The lock is released on every path.
func (r *Runner) SendChat(ctx context.Context, text string, startNew bool, resumeID int64) (reply string, err error) {
	st, err := session.Open(session.Options{
		Dir:          r.cfg.HistoryDir(),
		StartNew:     startNew,
		ResumeID:     resumeID,
		SystemPrompt: r.cfg.SystemMessage,
	})
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	st.AddUserMessage(text)

	msg, err := r.client.Complete(ctx, Request{
		Model:       r.cfg.Model,
		Temperature: r.cfg.Temperature,
		Messages:    st.Messages(),
	})
	if err != nil {
		return "", err
	}

	// Keep the reply verbatim so provider fields replay on later turns.
	st.Add(msg)

	if err := st.Commit(); err != nil {
		return "", err
	}

	log.Info().
		Int64("session_id", st.ID()).
		Str("model", r.cfg.Model).
		Msg("Exchange completed")

	return msg.Content, nil
}
