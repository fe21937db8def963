// Package models defines the domain records synchronized from a Tautulli server.
//
// Three record types are persisted:
//   - [MediaItem] : a library node (movie, show, season, episode, artist, album, track) keyed by rating key
//   - [User] : a server account keyed by user id
//   - [PlayHistory] : one playback event, deduplicated by (user, media, watched_at)
//
// Media items form a tree through ParentRatingKey. The reference is weak: a child may be observed before its parent,
// and pruning a parent nulls the reference on surviving children instead of deleting them.
//
// Every record has a Validate method. A [ValidationError] marks a single bad record; callers skip it and continue.
package models
