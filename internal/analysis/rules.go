package analysis

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// RuleOptions are the recognized classification options. The two *File
// fields name line-delimited title lists; an empty path means no titles.
type RuleOptions struct {
	RecurrenceThreshold int
	InternalDomain      string
	SkipTitlesFile      string
	IncludeTitlesFile   string
	// KeepBlankTitles keeps blank lines of the title files as literal
	// empty-string titles instead of dropping them.
	KeepBlankTitles bool
}

// RuleSet is the immutable classification rule set for one run.
type RuleSet struct {
	RecurrenceThreshold int
	InternalDomain      string

	skip    map[string]struct{}
	include map[string]struct{}
}

// RuleFileError reports a title file that could not be read.
type RuleFileError struct {
	Path string
	Err  error
}

func (e *RuleFileError) Error() string {
	return fmt.Sprintf("failed to read rule file %s: %v", e.Path, e.Err)
}

func (e *RuleFileError) Unwrap() error {
	return e.Err
}

// NewRuleSet builds a rule set from in-memory title lists.
func NewRuleSet(threshold int, domain string, skipTitles, includeTitles []string) (*RuleSet, error) {
	if threshold < 0 {
		return nil, fmt.Errorf("recurrence threshold must not be negative, got %d", threshold)
	}

	rs := &RuleSet{
		RecurrenceThreshold: threshold,
		InternalDomain:      domain,
		skip:                make(map[string]struct{}, len(skipTitles)),
		include:             make(map[string]struct{}, len(includeTitles)),
	}
	for _, t := range skipTitles {
		rs.skip[t] = struct{}{}
	}
	for _, t := range includeTitles {
		rs.include[t] = struct{}{}
	}
	return rs, nil
}

// LoadRuleSet reads both title files and builds the rule set.
func LoadRuleSet(opts RuleOptions) (*RuleSet, error) {
	skip, err := LoadTitles(opts.SkipTitlesFile, opts.KeepBlankTitles)
	if err != nil {
		return nil, err
	}
	include, err := LoadTitles(opts.IncludeTitlesFile, opts.KeepBlankTitles)
	if err != nil {
		return nil, err
	}
	return NewRuleSet(opts.RecurrenceThreshold, opts.InternalDomain, skip, include)
}

// LoadTitles reads one title per line, trimming surrounding whitespace.
func LoadTitles(path string, keepBlank bool) ([]string, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &RuleFileError{Path: path, Err: err}
	}
	defer f.Close()

	var titles []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		title := strings.TrimSpace(scanner.Text())
		if title == "" && !keepBlank {
			continue
		}
		titles = append(titles, title)
	}
	if err := scanner.Err(); err != nil {
		return nil, &RuleFileError{Path: path, Err: err}
	}
	return titles, nil
}

// IsForcedInclusion reports whether title bypasses every skip rule.
func (rs *RuleSet) IsForcedInclusion(title string) bool {
	_, ok := rs.include[title]
	return ok
}

// IsExternallySkipped reports whether title is on the external skip list.
func (rs *RuleSet) IsExternallySkipped(title string) bool {
	_, ok := rs.skip[title]
	return ok
}

func (rs *RuleSet) SkipTitleCount() int {
	return len(rs.skip)
}

func (rs *RuleSet) IncludeTitleCount() int {
	return len(rs.include)
}
