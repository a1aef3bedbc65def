package paste

import "errors"

var (
	// ErrNotFound is returned for unknown ids and for records whose content
	// is missing.
	ErrNotFound = errors.New("not found")

	ErrExpired      = errors.New("expired")
	ErrLimitReached = errors.New("download limit reached")

	ErrTooLarge      = errors.New("file too large")
	ErrBlockedType   = errors.New("file type not allowed")
	ErrSlugTaken     = errors.New("custom slug already in use")
	ErrInvalidSlug   = errors.New("invalid custom slug")
	ErrInvalidUpload = errors.New("invalid upload")
)

// IsGone reports whether err means the record is no longer readable
func IsGone(err error) bool {
	return errors.Is(err, ErrExpired) || errors.Is(err, ErrLimitReached)
}

// IsBadRequest reports whether err is caused by the uploaded payload
func IsBadRequest(err error) bool {
	for _, target := range []error{ErrTooLarge, ErrBlockedType, ErrSlugTaken, ErrInvalidSlug, ErrInvalidUpload} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
