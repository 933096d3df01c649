package obs

import "strings"

// CanonicalPath collapses identifier segments so metric label cardinality
// stays bounded. Only paths the router actually serves are rewritten.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segments) >= 2 && segments[0] == "users" && segments[1] != "me" && segments[1] != "role" {
		segments[1] = ":id"
		return "/" + strings.Join(segments, "/")
	}
	return path
}
