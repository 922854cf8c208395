package conversation

import "errors"

// ErrMissingID is returned when saving a reference without a conversation id.
var ErrMissingID = errors.New("conversation id is required")
