package rules

// List is an ordered sequence of rules: the first rule matching wins
type List []*Rule

// Compile builds a list of match rules
func Compile(patterns []string) (List, error) {
	list := make(List, 0, len(patterns))
	for _, pattern := range patterns {
		rule, err := New(pattern)
		if err != nil {
			return nil, err
		}
		list = append(list, rule)
	}
	return list, nil
}

// CompileFolders builds a list of "<match>=<folder>" rules
func CompileFolders(entries []string) (List, error) {
	list := make(List, 0, len(entries))
	for _, entry := range entries {
		rule, err := NewFolderRule(entry)
		if err != nil {
			return nil, err
		}
		list = append(list, rule)
	}
	return list, nil
}

// Match returns the first rule matching the line, or nil
func (l List) Match(line string) *Rule {
	for _, rule := range l {
		if rule.Matches(line) {
			return rule
		}
	}
	return nil
}

// Folders returns the destinations of the rules, without the mark-read prefix and the special inbox
func (l List) Folders() []string {
	folders := make([]string, 0, len(l))
	for _, rule := range l {
		if rule.Folder == "" || rule.StaysInInbox() {
			continue
		}
		folders = append(folders, rule.Destination())
	}
	return folders
}
