// Package stream is the best-effort live side channel: a websocket
// subscription whose items are archived as they arrive. It shares the
// persistence engine with backfill but none of its correctness burden; a
// dropped connection loses nothing that backfill will not pick up later.
package stream

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"magpie/internal/archive"
	"magpie/internal/model"
)

// Listener consumes a live feed until the connection drops or ctx ends.
type Listener struct {
	URL      string
	Archiver *archive.Archiver
	Log      zerolog.Logger
	Dialer   *websocket.Dialer
}

// Run connects and archives incoming items. Per-item persistence failures
// are logged and skipped; a read error ends the loop. Returns nil when ctx
// was canceled.
func (l *Listener) Run(ctx context.Context) error {
	dialer := l.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, l.URL, nil)
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()
	// Unblock ReadMessage on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	l.Log.Info().Str("url", l.URL).Msg("stream connected")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.Log.Info().Msg("stream closed by server")
				return nil
			}
			l.Log.Error().Err(err).Msg("stream ended")
			return err
		}
		l.handle(ctx, data)
	}
}

func (l *Listener) handle(ctx context.Context, data []byte) {
	doc, err := model.DecodeDocument(data)
	if err != nil {
		l.Log.Error().Err(err).Msg("stream: undecodable message")
		return
	}
	kind, item := classify(doc)
	if item == nil {
		l.Log.Debug().Msg("stream: skipping non-entity event")
		return
	}
	outcome, err := l.Archiver.Persist(ctx, kind, item)
	if err != nil {
		l.Log.Error().Err(err).Str("id", item.IDStr()).Msg("stream: archive failed")
		return
	}
	l.Log.Debug().Str("kind", string(kind)).Str("id", item.IDStr()).
		Stringer("outcome", outcome).Msg("stream: archived")
}

// classify maps a stream message onto an archivable entity. Direct messages
// arrive wrapped; tweets are recognized by id plus text; anything else
// (friend lists, delete notices, keepalives) is ignored.
func classify(doc model.Document) (model.Kind, model.Document) {
	if dm := doc.Sub("direct_message"); dm != nil {
		return model.KindDM, dm
	}
	if doc.IDStr() != "" && (doc.Str("text") != "" || doc.Str("full_text") != "") {
		return model.KindTweet, doc
	}
	return "", nil
}
