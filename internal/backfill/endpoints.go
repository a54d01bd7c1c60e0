package backfill

import (
	"net/url"

	"magpie/internal/model"
)

// Endpoint describes one paginated feed source and its fixed parameters.
type Endpoint struct {
	Name   string
	Path   string
	Kind   model.Kind
	Params url.Values
}

const pageSize = "200"

// Timeline pages the user's own timeline with trimmed authors.
func Timeline(userID string) Endpoint {
	return Endpoint{
		Name: "user timeline",
		Path: "/statuses/user_timeline.json",
		Kind: model.KindTweet,
		Params: url.Values{
			"user_id":     {userID},
			"trim_user":   {"true"},
			"count":       {pageSize},
			"include_rts": {"true"},
		},
	}
}

// Mentions pages tweets mentioning the user, with full entities.
func Mentions() Endpoint {
	return Endpoint{
		Name: "mentions",
		Path: "/statuses/mentions_timeline.json",
		Kind: model.KindTweet,
		Params: url.Values{
			"count":            {pageSize},
			"include_entities": {"true"},
		},
	}
}

// Favorites pages tweets the user favorited.
func Favorites(userID string) Endpoint {
	return Endpoint{
		Name: "favorites",
		Path: "/favorites/list.json",
		Kind: model.KindTweet,
		Params: url.Values{
			"user_id": {userID},
			"count":   {pageSize},
		},
	}
}

// SentDMs pages direct messages the user sent.
func SentDMs() Endpoint {
	return Endpoint{
		Name: "sent direct messages",
		Path: "/direct_messages/sent.json",
		Kind: model.KindDM,
		Params: url.Values{
			"count":       {pageSize},
			"skip_status": {"1"},
		},
	}
}

// ReceivedDMs pages direct messages the user received.
func ReceivedDMs() Endpoint {
	return Endpoint{
		Name: "received direct messages",
		Path: "/direct_messages.json",
		Kind: model.KindDM,
		Params: url.Values{
			"count":       {pageSize},
			"skip_status": {"1"},
		},
	}
}

// AllEndpoints returns every feed source of a full backup run.
func AllEndpoints(userID string) []Endpoint {
	return []Endpoint{
		Timeline(userID),
		Mentions(),
		Favorites(userID),
		SentDMs(),
		ReceivedDMs(),
	}
}
