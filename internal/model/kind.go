package model

import "fmt"

// Kind tags every stored document with its entity family.
// Possible values: tweet, user, dm, media.
type Kind string

const (
	KindTweet Kind = "tweet"
	KindUser  Kind = "user"
	KindDM    Kind = "dm"
	KindMedia Kind = "media"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindTweet, KindUser, KindDM, KindMedia:
		return true
	}
	return false
}

// KeyFor maps a kind and canonical identifier to the storage key,
// e.g. "tweet:401527406457933824".
func KeyFor(k Kind, id string) string {
	return fmt.Sprintf("%s:%s", k, id)
}
