package archive

import (
	"context"

	"github.com/pkg/errors"

	"magpie/internal/metrics"
	"magpie/internal/model"
	"magpie/internal/store"
)

// DiscoverReferences inspects a freshly archived tweet and queues every
// entity it references: the replied-to tweet, mentioned accounts, and media
// attachments. Queuing is idempotent; nothing here can fail the tweet.
func (a *Archiver) DiscoverReferences(ctx context.Context, tweet model.Document) {
	if replyID := tweet.Str("in_reply_to_status_id_str"); replyID != "" {
		a.QueueForBackup(ctx, model.KindTweet, model.Document{"id_str": replyID})
	}
	entities := tweet.Sub("entities")
	for _, mention := range entities.List("user_mentions") {
		a.QueueForBackup(ctx, model.KindUser, mention)
	}
	media := tweet.Sub("extended_entities").List("media")
	if media == nil {
		media = entities.List("media")
	}
	tweetKey, _ := tweet.Key(model.KindTweet)
	for _, m := range media {
		ref := model.Document{"id_str": m.IDStr(), "tweet": tweetKey}
		if u := m.Str("media_url_https"); u != "" {
			ref["media_url"] = u
		} else if u := m.Str("media_url"); u != "" {
			ref["media_url"] = u
		}
		a.QueueForBackup(ctx, model.KindMedia, ref)
	}
}

// QueueForBackup records that an entity is known to exist but not yet fully
// archived. The check-then-insert is deliberately best effort: a concurrent
// writer hitting the same key surfaces as an insert conflict, which is
// swallowed. Errors are logged, never propagated; the queue must not affect
// whatever activity discovered the reference.
//
// Placeholder document structure:
//
//	{
//	  "type"         : "{kind}",
//	  "id_str"       : "{id}",          // when known
//	  "screen_name"  : "{screen_name}", // user queued by handle only
//	  "media_url"    : "{url}",         // media source location
//	  "tweet"        : "tweet:{id}",    // media owning tweet
//	  "needs_backup" : true
//	}
func (a *Archiver) QueueForBackup(ctx context.Context, kind model.Kind, ref model.Document) {
	placeholder := model.Document{
		"type":         string(kind),
		"needs_backup": true,
	}
	for _, field := range []string{"screen_name", "media_url", "tweet"} {
		if v := ref.Str(field); v != "" {
			placeholder[field] = v
		}
	}

	if id := ref.IDStr(); id != "" {
		placeholder["id_str"] = id
		key := model.KeyFor(kind, id)
		if _, _, err := a.store.Get(ctx, key); err == nil {
			return // already archived or already queued
		} else if !errors.Is(err, store.ErrNotFound) {
			a.log.Error().Err(err).Str("key", key).Msg("checking backup queue")
			return
		}
		a.insertPlaceholder(ctx, key, placeholder)
		return
	}

	if kind == model.KindUser {
		name := ref.Str("screen_name")
		if name == "" {
			return
		}
		matches, err := a.store.FindAccountsByHandle(ctx, name)
		if err != nil {
			a.log.Error().Err(err).Str("screen_name", name).Msg("looking up handle")
			return
		}
		if len(matches) > 0 {
			return
		}
		a.insertPlaceholder(ctx, model.KeyFor(kind, name), placeholder)
	}
}

func (a *Archiver) insertPlaceholder(ctx context.Context, key string, placeholder model.Document) {
	if _, err := a.store.Insert(ctx, key, placeholder); err != nil {
		// A conflict means another writer got there first; harmless.
		if !errors.Is(err, store.ErrConflict) {
			a.log.Error().Err(err).Str("key", key).Msg("queuing for backup")
		}
		return
	}
	metrics.QueuePlaceholders.WithLabelValues(placeholder.Str("type")).Inc()
}
