package archive

import (
	"context"

	"magpie/internal/model"
)

// stripEmpty removes empty values in place: empty strings, nils, and empty
// objects or arrays. Keeps stored documents small and avoids false diffs
// between fetches of the same entity.
func stripEmpty(doc model.Document) {
	for k, v := range doc {
		if isEmpty(v) {
			delete(doc, k)
			continue
		}
		switch t := v.(type) {
		case map[string]any:
			stripEmpty(model.Document(t))
		case model.Document:
			stripEmpty(t)
		case []any:
			for _, el := range t {
				if m, ok := el.(map[string]any); ok {
					stripEmpty(model.Document(m))
				}
			}
		}
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case map[string]any:
		return len(t) == 0
	case model.Document:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

// trimmedUser reduces an embedded author to a minimal reference. Full author
// records are archived standalone, never nested inside tweets.
func trimmedUser(user model.Document) model.Document {
	ref := model.Document{}
	for _, k := range []string{"id", "id_str"} {
		if v, ok := user[k]; ok {
			ref[k] = v
		}
	}
	return ref
}

// normalizeTweet prepares a tweet for storage. An embedded author carrying a
// display name is archived as its own user document first, then replaced by
// the trimmed reference. A coercible numeric id is materialized as id_str.
func (a *Archiver) normalizeTweet(ctx context.Context, tweet model.Document) model.Document {
	stripEmpty(tweet)
	if tweet.Str("id_str") == "" {
		if id := tweet.IDStr(); id != "" {
			tweet["id_str"] = id
		}
	}
	if user := tweet.Sub("user"); user != nil {
		if user.Str("name") != "" {
			if _, err := a.persistUser(ctx, user); err != nil {
				a.log.Error().Err(err).Str("tweet", tweet.IDStr()).Msg("archiving embedded author")
			}
		}
		tweet["user"] = trimmedUser(user)
	}
	tweet["type"] = string(model.KindTweet)
	return tweet
}

// normalizeDM prepares a direct message. Sender and recipient are archived
// as standalone users and removed from the message entirely.
func (a *Archiver) normalizeDM(ctx context.Context, dm model.Document) model.Document {
	stripEmpty(dm)
	if dm.Str("id_str") == "" {
		if id := dm.IDStr(); id != "" {
			dm["id_str"] = id
		}
	}
	for _, field := range []string{"sender", "recipient"} {
		if user := dm.Sub(field); user != nil {
			if _, err := a.persistUser(ctx, user); err != nil {
				a.log.Error().Err(err).Str("dm", dm.IDStr()).Msgf("archiving %s", field)
			}
			delete(dm, field)
		}
	}
	dm["type"] = string(model.KindDM)
	return dm
}

// normalizeUser prepares a user. The status subdocument (the user's latest
// tweet) is stripped; tweets are archived on their own.
func normalizeUser(user model.Document) model.Document {
	delete(user, "status")
	stripEmpty(user)
	user["type"] = string(model.KindUser)
	return user
}
