package naming

import "testing"

func TestSnakeCase(t *testing.T) {
	for _, tc := range []struct {
		internal string
		external string
	}{
		{"title", "title"},
		{"publishedAt", "published_at"},
		{"authorFirstName", "author_first_name"},
		{"id", "id"},
	} {
		t.Run(tc.internal, func(t *testing.T) {
			if got := (SnakeCase{}).Normalize(tc.internal); got != tc.external {
				t.Errorf("Normalize(%q) = %q, want %q", tc.internal, got, tc.external)
			}
			if got := (SnakeCase{}).Denormalize(tc.external); got != tc.internal {
				t.Errorf("Denormalize(%q) = %q, want %q", tc.external, got, tc.internal)
			}
		})
	}
}

func TestSnakeCase_Acronym(t *testing.T) {
	if got := (SnakeCase{}).Normalize("coverURL"); got != "cover_url" {
		t.Errorf("Normalize(coverURL) = %q", got)
	}
	if got := (SnakeCase{}).Normalize("URLPath"); got != "url_path" {
		t.Errorf("Normalize(URLPath) = %q", got)
	}
}

func TestDenormalizePath(t *testing.T) {
	if got := DenormalizePath(SnakeCase{}, "author.first_name"); got != "author.firstName" {
		t.Errorf("DenormalizePath = %q", got)
	}
	if got := DenormalizePath(nil, "a_b.c_d"); got != "a_b.c_d" {
		t.Errorf("DenormalizePath(nil) = %q", got)
	}
	if got := NormalizePath(SnakeCase{}, "author.firstName"); got != "author.first_name" {
		t.Errorf("NormalizePath = %q", got)
	}
}

func TestByName(t *testing.T) {
	if _, ok := ByName("snake_case"); !ok {
		t.Error("snake_case should be registered")
	}
	if c, ok := ByName(""); !ok || c.Denormalize("a_b") != "a_b" {
		t.Error("empty name should select identity")
	}
	if _, ok := ByName("kebab"); ok {
		t.Error("kebab should not be registered")
	}
}
