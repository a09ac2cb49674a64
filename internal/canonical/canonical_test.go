package canonical

import "testing"

func TestNormalizeAliases(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"full_name", "name"},
		{" Full_Name ", "name"},
		{"name", "name"},
		{"programming_language", "language"},
		{"TZ", "timezone"},
		{"based_in", "location"},
		{"db", "database"},
		{"favorite_color", "favorite_color"},
		{"  Favorite_Color  ", "favorite_color"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.raw); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, raw := range []string{"full_name", "NAME", "unknown_key", " where "} {
		once := Normalize(raw)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q -> %q", raw, once, twice)
		}
	}
}

func TestAliasSetsDisjoint(t *testing.T) {
	seen := make(map[string]string)
	for canon, aliases := range keyAliases {
		for _, a := range aliases {
			if prev, ok := seen[a]; ok && prev != canon {
				t.Errorf("alias %q claimed by both %q and %q", a, prev, canon)
			}
			seen[a] = canon
		}
	}
}
