package krooster

import "errors"

// ErrUpstream marks transport, status or decoding failures talking to the
// roster store. Unknown handles are not errors.
var ErrUpstream = errors.New("krooster upstream failure")
