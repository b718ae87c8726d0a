package media

import "errors"

var ErrStoreFailed = errors.New("failed to store media object")
