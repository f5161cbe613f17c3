package event

import "strings"

const documentsMarker = "/documents/"

// DocumentPath strips the "projects/{p}/databases/{db}/documents/" prefix from a
// resource name, leaving e.g. "notificationRequests/abc". Already-relative paths
// are returned unchanged.
func DocumentPath(resource string) string {
	if idx := strings.Index(resource, documentsMarker); idx >= 0 {
		return resource[idx+len(documentsMarker):]
	}
	return strings.Trim(resource, "/")
}

// MatchPattern matches a document path against a trigger pattern such as
// "users/{userId}" and returns the wildcard values.
func MatchPattern(pattern, docPath string) (map[string]string, bool) {
	patternParts := strings.Split(strings.Trim(pattern, "/"), "/")
	pathParts := strings.Split(strings.Trim(docPath, "/"), "/")
	if len(patternParts) != len(pathParts) {
		return nil, false
	}

	params := make(map[string]string)
	for i, part := range patternParts {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			if pathParts[i] == "" {
				return nil, false
			}
			params[part[1:len(part)-1]] = pathParts[i]
			continue
		}
		if part != pathParts[i] {
			return nil, false
		}
	}
	return params, true
}
