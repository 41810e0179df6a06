// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"sasecore/internal/logging"
	"sasecore/internal/rules"
)

// loadRuleSet reads every signature rule under sourcePath, which may name a
// single rule file or a directory of them. A line that fails to parse is
// logged and skipped rather than aborting the whole load — one bad rule
// should never keep the rest of the rule set out of service.
func loadRuleSet(sourcePath string) ([]rules.Rule, error) {
	if sourcePath == "" {
		return nil, nil
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", sourcePath, err)
	}

	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(sourcePath)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", sourcePath, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			files = append(files, filepath.Join(sourcePath, e.Name()))
		}
	} else {
		files = []string{sourcePath}
	}

	var all []rules.Rule
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		result := rules.ParseContent(string(content))
		for _, lineErr := range result.Errors {
			logging.Warn("skipping unparsable rule", "file", f, "line", lineErr.Line, "error", lineErr.Err)
		}
		all = append(all, result.Rules...)
	}
	return all, nil
}
