package storage

import (
	"sort"
	"strings"

	"github.com/JonMunkholm/tenantinit/internal/core"
)

// Collection names in the service content database.
const (
	collRecords      = "knowledge_records"
	collTriggerRules = "trigger_rules"
	collCategories   = "categories"
	collSettings     = "workspace_settings"
)

// TriggerRule routes a conversation to a scenario.
type TriggerRule struct {
	WorkspaceID string   `bson:"workspace_id" json:"workspace_id"`
	Name        string   `bson:"name" json:"name"`
	Trigger     string   `bson:"trigger" json:"trigger"`
	Keywords    []string `bson:"keywords,omitempty" json:"keywords,omitempty"`
	Response    string   `bson:"response" json:"response"`
}

// Category is a workspace category with its record count.
type Category struct {
	WorkspaceID string `bson:"workspace_id" json:"workspace_id"`
	Name        string `bson:"name" json:"name"`
	RecordCount int    `bson:"record_count" json:"record_count"`
}

// deriveTriggerRules builds one rule per distinct scenario title; the last
// record with a given title wins.
func deriveTriggerRules(workspaceID string, scenarios []core.Record) []TriggerRule {
	byName := make(map[string]TriggerRule)
	for _, r := range scenarios {
		name := strings.TrimSpace(r.Title)
		if name == "" {
			continue
		}
		trigger := r.Category
		if trigger == "" {
			trigger = strings.ToLower(strings.Join(strings.Fields(name), "_"))
		}
		byName[name] = TriggerRule{
			WorkspaceID: workspaceID,
			Name:        name,
			Trigger:     trigger,
			Keywords:    r.Tags,
			Response:    r.Content,
		}
	}

	rules := make([]TriggerRule, 0, len(byName))
	for _, rule := range byName {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules
}

// deriveCategories counts records per non-empty category, sorted by name.
func deriveCategories(workspaceID string, records []core.Record) []Category {
	counts := make(map[string]int)
	for _, r := range records {
		if r.Category != "" {
			counts[r.Category]++
		}
	}

	out := make([]Category, 0, len(counts))
	for name, n := range counts {
		out = append(out, Category{WorkspaceID: workspaceID, Name: name, RecordCount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// batchBounds splits n items into [start, end) ranges of at most size.
func batchBounds(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
