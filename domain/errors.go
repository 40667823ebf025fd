package domain

import "errors"

var (
	// ErrNotFound indicates the target document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a create targeted an existing document.
	ErrAlreadyExists = errors.New("already exists")

	// ErrConflict indicates a concurrent writer invalidated a transaction's reads.
	// Stores retry it; callers only see it once the retry budget is spent.
	ErrConflict = errors.New("transaction conflict")

	// ErrUnauthorized indicates missing or invalid credentials, or a caller
	// lacking permission for the mutation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnavailable indicates the backing store could not be reached.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrInvalidDocument indicates a stored document does not match its schema.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidArgument indicates a malformed request, e.g. an empty id.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPostTooLong indicates the post exceeds the character limit.
	ErrPostTooLong = errors.New("post exceeds character limit")

	// ErrEmptyPost indicates the user submitted an empty post.
	ErrEmptyPost = errors.New("post cannot be empty")

	// ErrInvalidImage indicates an unsupported or undecodable image.
	ErrInvalidImage = errors.New("unsupported image")

	// ErrImageTooLarge indicates the image exceeds the upload size limit.
	ErrImageTooLarge = errors.New("image exceeds size limit")

	// ErrSubscriptionClosed is returned by Next after a subscription was closed.
	ErrSubscriptionClosed = errors.New("subscription closed")
)
