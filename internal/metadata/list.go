package metadata

import (
	"encoding/json"

	"github.com/juju/errors"
)

// Index lists are stored as serialized JSON arrays of physical
// identifiers inside a single column value.

func decodeList(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, errors.Annotatef(err, "decoding table index")
	}
	return list, nil
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", errors.Annotatef(err, "encoding table index")
	}
	return string(b), nil
}

func appendID(list []string, id string) ([]string, error) {
	for _, existing := range list {
		if existing == id {
			return nil, errors.AlreadyExistsf("table %q", id)
		}
	}
	return append(list, id), nil
}

func removeID(list []string, id string) ([]string, error) {
	for i, existing := range list {
		if existing == id {
			return append(list[:i:i], list[i+1:]...), nil
		}
	}
	return nil, errors.NotFoundf("table %q", id)
}

// swapID replaces oldID with newID in place, preserving position. An
// exact element swap avoids the intermediate state where both or
// neither identifier is present.
func swapID(list []string, oldID, newID string) ([]string, error) {
	for _, existing := range list {
		if existing == newID {
			return nil, errors.AlreadyExistsf("table %q", newID)
		}
	}
	out := make([]string, len(list))
	found := false
	for i, existing := range list {
		if existing == oldID {
			out[i] = newID
			found = true
		} else {
			out[i] = existing
		}
	}
	if !found {
		return nil, errors.NotFoundf("table %q", oldID)
	}
	return out, nil
}
