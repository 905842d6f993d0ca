package clipboard

import "strings"

// sanitizeFilenameForLinux strips path separators and characters that
// are either illegal or awkward on a POSIX filesystem from a Windows
// filename, so a name like "report\\Q1<final>.docx" becomes a name
// that can be created directly under a Linux download/FUSE directory.
// Grounded on manager.rs's sanitize_filename_for_linux call sites
// (manager.rs:1729, 2168, 2272, 2465) — the helper itself was never
// part of the retrieved pack (see loop.go's doc comment for the same
// situation with LoopDetector), so the rule set here is reconstructed
// from what those call sites need: a name safe to pass to os.Create
// and to display back to the user.
func sanitizeFilenameForLinux(name string) string {
	if name == "" {
		return "unnamed"
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == 0:
			b.WriteByte('_')
		case r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			b.WriteByte('_')
		case r < 0x20:
			// control characters
		default:
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), " .")
	if out == "" || out == "." || out == ".." {
		return "unnamed"
	}
	return out
}

// sanitizeTextForWindows/sanitizeTextForLinux apply the §4.F
// line-ending canonicalisation rule in each direction — toward Windows
// every bare LF becomes CRLF, toward Linux every CRLF collapses to LF
// — and drop stray embedded NULs either direction would otherwise
// carry through a UTF-16LE/UTF-8 round trip.

func sanitizeTextForWindows(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = sanitizeTextForLinux(s) // normalize to bare LF first
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func sanitizeTextForLinux(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
