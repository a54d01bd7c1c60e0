// Package archive is the persistence engine: it normalizes fetched entities,
// writes them idempotently against the revisioned document store, and queues
// referenced entities for later backfill.
package archive

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"magpie/internal/metrics"
	"magpie/internal/model"
	"magpie/internal/store"
)

// Outcome reports what Persist did with an entity.
type Outcome int

const (
	// OutcomeCreated means the entity was newly archived (including the case
	// where it superseded a backup-queue placeholder).
	OutcomeCreated Outcome = iota
	// OutcomeAlreadyPresent means an equivalent document already occupied
	// the key and was left untouched.
	OutcomeAlreadyPresent
)

func (o Outcome) String() string {
	if o == OutcomeCreated {
		return "created"
	}
	return "already-present"
}

// Archiver persists entities into a document store.
type Archiver struct {
	store store.Store
	log   zerolog.Logger
}

func New(s store.Store, log zerolog.Logger) *Archiver {
	return &Archiver{store: s, log: log}
}

// Persist normalizes the entity and writes it under its storage key.
// Store conflicts are resolved per kind; any other store error is fatal for
// the item and returned to the caller.
func (a *Archiver) Persist(ctx context.Context, kind model.Kind, doc model.Document) (Outcome, error) {
	var out Outcome
	var err error
	switch kind {
	case model.KindTweet:
		out, err = a.persistTweet(ctx, doc)
	case model.KindUser:
		out, err = a.persistUser(ctx, doc)
	case model.KindDM:
		out, err = a.persistDM(ctx, doc)
	case model.KindMedia:
		// Media content is stored as attachments on the owning tweet; there
		// is no standalone media document to persist.
		return 0, errors.New("media is archived as tweet attachments, not persisted directly")
	default:
		return 0, errors.Errorf("cannot persist item of unknown kind %q", kind)
	}
	if err != nil {
		metrics.PersistErrors.Inc()
		return out, err
	}
	switch out {
	case OutcomeCreated:
		metrics.DocumentsCreated.WithLabelValues(string(kind)).Inc()
	case OutcomeAlreadyPresent:
		metrics.DocumentsDuplicate.WithLabelValues(string(kind)).Inc()
	}
	return out, nil
}

func (a *Archiver) persistTweet(ctx context.Context, tweet model.Document) (Outcome, error) {
	tweet = a.normalizeTweet(ctx, tweet)
	key, err := tweet.Key(model.KindTweet)
	if err != nil {
		return 0, err
	}
	if _, err := a.store.Insert(ctx, key, tweet); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return 0, errors.Wrapf(err, "saving %s", key)
		}
		if isSelfReply(tweet) {
			// The API hands back duplicates when a user replies to themself;
			// the copy already archived wins.
			return OutcomeAlreadyPresent, nil
		}
		out, err := a.resolveConflict(ctx, key, tweet)
		if err != nil || out == OutcomeAlreadyPresent {
			return out, err
		}
	}
	a.DiscoverReferences(ctx, tweet)
	return OutcomeCreated, nil
}

func (a *Archiver) persistUser(ctx context.Context, user model.Document) (Outcome, error) {
	user = normalizeUser(user)
	key, err := user.Key(model.KindUser)
	if err != nil {
		return 0, err
	}
	out := OutcomeCreated
	if _, err := a.store.Insert(ctx, key, user); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return 0, errors.Wrapf(err, "saving %s", key)
		}
		out, err = a.resolveConflict(ctx, key, user)
		if err != nil {
			return 0, err
		}
	}
	// An id-keyed and a handle-keyed placeholder can coexist when the same
	// account was referenced both ways. Once the full user occupies the id
	// key, the handle key is stale no matter which path stored it.
	if name := user.Str("screen_name"); name != "" && user.IDStr() != "" {
		a.removeHandlePlaceholder(ctx, name)
	}
	return out, nil
}

func (a *Archiver) persistDM(ctx context.Context, dm model.Document) (Outcome, error) {
	dm = a.normalizeDM(ctx, dm)
	key, err := dm.Key(model.KindDM)
	if err != nil {
		return 0, err
	}
	if _, err := a.store.Insert(ctx, key, dm); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return 0, errors.Wrapf(err, "saving %s", key)
		}
		return a.resolveConflict(ctx, key, dm)
	}
	return OutcomeCreated, nil
}

// resolveConflict inspects the document occupying the key. A backup-queue
// placeholder is superseded by the real entity through a revisioned save;
// anything else means the entity is already archived.
func (a *Archiver) resolveConflict(ctx context.Context, key string, doc model.Document) (Outcome, error) {
	existing, rev, err := a.store.Get(ctx, key)
	if err != nil {
		// The read after a conflict must succeed; a missing document here
		// means the conflict cannot be explained and is surfaced as-is.
		return 0, errors.Wrapf(err, "resolving conflict at %s", key)
	}
	if !existing.NeedsBackup() {
		return OutcomeAlreadyPresent, nil
	}
	if _, err := a.store.Save(ctx, key, rev, doc); err != nil {
		return 0, errors.Wrapf(err, "replacing placeholder at %s", key)
	}
	return OutcomeCreated, nil
}

// removeHandlePlaceholder deletes a screen_name-keyed placeholder once the
// id-keyed user document exists. A not-found on delete is a benign race.
func (a *Archiver) removeHandlePlaceholder(ctx context.Context, screenName string) {
	key := model.KeyFor(model.KindUser, screenName)
	doc, rev, err := a.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			a.log.Error().Err(err).Str("key", key).Msg("reading handle placeholder")
		}
		return
	}
	if !doc.NeedsBackup() {
		return
	}
	if err := a.store.Delete(ctx, key, rev); err != nil && !errors.Is(err, store.ErrNotFound) {
		a.log.Error().Err(err).Str("key", key).Msg("removing handle placeholder")
	}
}

// isSelfReply reports whether the tweet's author replied to themself.
func isSelfReply(tweet model.Document) bool {
	user := tweet.Sub("user")
	if user == nil {
		return false
	}
	id := user.Str("id_str")
	return id != "" && id == tweet.Str("in_reply_to_user_id_str")
}
