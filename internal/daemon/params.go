package daemon

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// bindParams re-encodes req.Params (already decoded generically by the
// frame codec into maps/slices) and decodes it into out, which should be a
// pointer to a msgpack-tagged struct. This keeps every handler's parameter
// struct self-documenting instead of doing ad-hoc map[string]any digging.
func bindParams(params any, out any) error {
	if params == nil {
		return nil
	}
	data, err := msgpack.Marshal(params)
	if err != nil {
		return fmt.Errorf("daemon: re-encode params: %w", err)
	}
	if err := msgpack.Unmarshal(data, out); err != nil {
		return fmt.Errorf("daemon: decode params: %w", err)
	}
	return nil
}
