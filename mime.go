package reactord

import "strings"

// mimeTable is the extension->Content-Type table spec.md §6 requires.
// Deliberately not delegated to the stdlib mime package: that package's
// table disagrees with the one the spec pins down (notably ".js").
var mimeTable = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "text/javascript",
	".png":  "image/png",
	".gif":  "image/gif",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
}

// contentTypeFor returns the MIME type for path's extension, defaulting to
// text/plain for anything unrecognized.
func contentTypeFor(path string) string {
	ext := path
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		ext = strings.ToLower(path[i:])
	} else {
		return "text/plain"
	}
	if ct, ok := mimeTable[ext]; ok {
		return ct
	}
	return "text/plain"
}
