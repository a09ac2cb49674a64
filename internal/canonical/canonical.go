// Package canonical normalizes extracted fact keys to a fixed vocabulary
// so retrieval always sees one spelling per concept ("full_name" -> "name").
package canonical

import "strings"

// keyAliases maps each canonical key to the raw spellings the extractor
// is known to produce. Alias sets are disjoint across canonical keys.
var keyAliases = map[string][]string{
	"name":              {"name", "full_name", "username", "first_name", "my_name"},
	"language":          {"language", "programming_language", "preferred_language", "lang", "code_language"},
	"formatter":         {"formatter", "code_formatter", "formatting_tool", "format_tool"},
	"location":          {"location", "city", "place", "where", "based_in"},
	"timezone":          {"timezone", "tz", "time_zone"},
	"project":           {"project", "working_on", "current_project", "hackathon_project"},
	"job":               {"job", "occupation", "role", "work", "profession"},
	"testing_framework": {"testing_framework", "test_framework", "testing_tool"},
	"api_framework":     {"api_framework", "api_tool", "web_framework"},
	"type_hints":        {"type_hints", "use_type_hints", "type_annotations"},
	"docstrings":        {"docstrings", "documentation_style", "doc_style"},
	"line_length":       {"line_length", "max_line_length", "code_width"},
	"database":          {"database", "db", "database_system"},
	"latency_target":    {"latency_target", "target_latency", "latency_goal"},
}

// aliasIndex is the flattened alias -> canonical lookup, built once.
var aliasIndex = buildIndex()

func buildIndex() map[string]string {
	idx := make(map[string]string, len(keyAliases)*4)
	for canon, aliases := range keyAliases {
		idx[canon] = canon
		for _, a := range aliases {
			idx[strings.ToLower(a)] = canon
		}
	}
	return idx
}

// Normalize returns the canonical form of a raw fact key. Unknown keys
// pass through trimmed and lower-cased. Idempotent.
func Normalize(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if canon, ok := aliasIndex[key]; ok {
		return canon
	}
	return key
}

// Keys returns the canonical vocabulary, used to build extraction prompts.
func Keys() []string {
	out := make([]string, 0, len(keyAliases))
	for canon := range keyAliases {
		out = append(out, canon)
	}
	return out
}
