package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// State file names. All three live flat in the configured directory so
// operators can inspect them with any JSON tool.
const (
	ApprovalsFile = "ad_copy_approvals.json"
	HistoryFile   = "ad_copy_history.json"
	ReactionsFile = "slack_reactions.json"
)

// readJSONFile loads a state file into out. A missing file leaves out
// untouched; a file that exists but fails to parse is a hard error so
// a corrupted ledger aborts the run instead of being silently reset.
func readJSONFile(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("ledger: reading %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("ledger: state file %s is corrupt: %w", filepath.Base(path), err)
	}
	return nil
}

// writeJSONFile writes the state atomically: marshal to a temp file in
// the same directory, then rename over the target. Readers never see a
// half-written file.
func writeJSONFile(path string, in interface{}) error {
	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: marshaling %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("ledger: creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("ledger: writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ledger: closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ledger: replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}
