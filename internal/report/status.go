package report

import "upsmon/internal/storage"

// StatusFromFile renders the state file at path for an on-demand request.
// It returns storage.ErrNoData when the poller has not written one yet.
func StatusFromFile(path string) (string, error) {
	st, err := storage.ReadState(path)
	if err != nil {
		return "", err
	}
	return StoredState(st), nil
}
