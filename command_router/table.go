// Package command_router maps transcribed text onto command identifiers.
//
// Routing is substring containment in table order: the first phrase found
// anywhere in the text wins. A short phrase placed before a longer one that
// contains it will shadow the longer one, so the order of a table is part of
// its meaning.
package command_router

import (
	"fmt"
	"sort"
	"strings"
)

type CommandID string

const (
	CommandHeyChair             CommandID = "hey_chair"
	CommandHeyChairReclinerUp   CommandID = "hey_chair_recliner_up"
	CommandHeyChairReclinerDown CommandID = "hey_chair_recliner_down"
	CommandReclinerUp           CommandID = "recliner_up"
	CommandReclinerDown         CommandID = "recliner_down"
	CommandStop                 CommandID = "stop"
	CommandCheckInternet        CommandID = "check_internet"
	CommandHeyBird              CommandID = "hey_bird"
)

type Entry struct {
	Phrase  string
	Command CommandID
}

// Table is an ordered phrase table. It is immutable once built.
type Table struct {
	name    string
	entries []Entry
}

func NewTable(name string, entries []Entry) (Table, error) {
	if len(entries) == 0 {
		return Table{}, fmt.Errorf("phrase table %q is empty", name)
	}

	seen := make(map[string]bool, len(entries))
	copied := make([]Entry, 0, len(entries))

	for _, e := range entries {
		phrase := Normalize(e.Phrase)
		if phrase == "" {
			return Table{}, fmt.Errorf("phrase table %q has an empty phrase", name)
		}

		if e.Command == "" {
			return Table{}, fmt.Errorf("phrase %q in table %q has no command", phrase, name)
		}

		if seen[phrase] {
			return Table{}, fmt.Errorf("phrase %q appears twice in table %q", phrase, name)
		}
		seen[phrase] = true

		copied = append(copied, Entry{Phrase: phrase, Command: e.Command})
	}

	return Table{name: name, entries: copied}, nil
}

func (t Table) Name() string {
	return t.name
}

// Entries returns a copy of the entries in match order.
func (t Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t Table) Len() int {
	return len(t.entries)
}

// Route returns the command of the first phrase, in table order, that text
// contains.
func Route(text string, table Table) (CommandID, bool) {
	for _, e := range table.entries {
		if strings.Contains(text, e.Phrase) {
			return e.Command, true
		}
	}

	return "", false
}

// Normalize lowercases text, drops everything except letters, digits and
// spaces and collapses runs of spaces.
func Normalize(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}

		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == ' ' {
			return r
		}

		if r == '\t' || r == '\n' || r == '-' {
			return ' '
		}

		return -1
	}, text)

	return strings.Join(strings.Fields(cleaned), " ")
}

var registry = map[string][]Entry{
	"en": english,
}

// Lookup returns a built-in table by name.
func Lookup(name string) (Table, error) {
	entries, ok := registry[name]
	if !ok {
		names := make([]string, 0, len(registry))
		for n := range registry {
			names = append(names, n)
		}
		sort.Strings(names)

		return Table{}, fmt.Errorf("unknown phrase table %q (available: %s)", name, strings.Join(names, ", "))
	}

	return NewTable(name, entries)
}
