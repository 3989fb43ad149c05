package utils

import "testing"

func TestMatchURIExact(t *testing.T) {
	if !MatchURI("/api/users", "/api/users") {
		t.Fatalf("exact pattern should match itself")
	}
	if !MatchURI("/API/Users", "/api/users") {
		t.Fatalf("matching should be case-insensitive")
	}
	if MatchURI("/api/users", "/api/users/5") {
		t.Fatalf("literal pattern must not match a longer uri")
	}
}

func TestMatchURIWildcard(t *testing.T) {
	if !MatchURI("/api/*", "/api/users") {
		t.Fatalf("wildcard should span one segment")
	}
	if !MatchURI("/api/*", "/api/users/5") {
		t.Fatalf("wildcard should span multiple segments")
	}
	if MatchURI("/api/*", "/admin/users") {
		t.Fatalf("wildcard must not match outside its prefix")
	}
}

func TestMatchURIParams(t *testing.T) {
	if !MatchURI("/api/{id}", "/api/5") {
		t.Fatalf("parameter should match one segment")
	}
	if MatchURI("/api/{id}", "/api/5/roles") {
		t.Fatalf("parameter must not span segments")
	}
	if !MatchURI("/users/{userId}/posts/{postId}", "/users/7/posts/42") {
		t.Fatalf("multiple parameters should each bind a segment")
	}
}

func TestMatchURIPrecedence(t *testing.T) {
	// An exact pattern beats its own wildcard reading: "/api/{id}" taken
	// literally never matches because exact comparison runs first only for
	// literal equality, then the parameter form applies.
	if !MatchURI("/api/{id}", "/api/{id}") {
		t.Fatalf("pattern text should match itself exactly")
	}
}

func TestExtractParams(t *testing.T) {
	params := ExtractParams("/users/{userId}/posts/{postId}", "/users/7/posts/42")
	if params["userId"] != "7" || params["postId"] != "42" {
		t.Fatalf("unexpected bindings: %v", params)
	}
	if got := ExtractParams("/api/{id}", "/api/5/roles"); len(got) != 0 {
		t.Fatalf("no bindings expected when the uri does not match, got %v", got)
	}
	if got := ExtractParams("/api/users", "/api/users"); len(got) != 0 {
		t.Fatalf("no bindings expected for a parameterless pattern, got %v", got)
	}
}

func TestValidatePattern(t *testing.T) {
	for _, ok := range []string{"/api/users", "/api/*", "/api/{id}", "/users/{userId}/posts/{postId}"} {
		if err := ValidatePattern(ok); err != nil {
			t.Fatalf("pattern %q should validate: %v", ok, err)
		}
	}
	for _, bad := range []string{"/api/{", "/api/{}", "/api/{1abc}"} {
		if err := ValidatePattern(bad); err == nil {
			t.Fatalf("pattern %q should be rejected", bad)
		}
	}
}
