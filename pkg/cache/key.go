package cache

import (
	"net/url"
	"strings"
)

// DefaultNamespace prefixes every key written by this package.
const DefaultNamespace = "redmine"

// Key identifies one cached response.
type Key struct {
	// Namespace defaults to DefaultNamespace.
	Namespace string

	// Path is the request path, e.g. "/issues.xml".
	Path string

	// Query holds the request parameters including offset and limit.
	Query url.Values

	// Principal separates responses fetched with different API keys.
	// Empty for anonymous access.
	Principal string
}

// String renders a deterministic key. The query is URL-encoded with sorted
// names, so separators inside values cannot collide with the key layout.
// Format: redmine:issues.xml:limit=25&offset=0&project_id=1:principal=<id>
func (k Key) String() string {
	parts := []string{k.Resource()}

	if len(k.Query) > 0 {
		parts = append(parts, k.Query.Encode())
	}

	if k.Principal != "" {
		parts = append(parts, "principal="+k.Principal)
	}

	return strings.Join(parts, ":")
}

// Resource renders the namespace and path only. Every variant of the same
// resource (query, principal) starts with Resource() + ":".
func (k Key) Resource() string {
	ns := k.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	if path := strings.Trim(k.Path, "/"); path != "" {
		return ns + ":" + path
	}
	return ns
}

// KeyForURL builds the key of a request URL.
func KeyForURL(u *url.URL, principal string) Key {
	return Key{
		Path:      u.Path,
		Query:     u.Query(),
		Principal: principal,
	}
}
