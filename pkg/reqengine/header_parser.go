package reqengine

// ParseHeaderLine implements the HeaderParser component (spec.md §4.3). It
// is invoked once per raw header line, operating on a byte slice "owned"
// by the transfer engine for the duration of the call:
//
//   - Trailing CR/LF and whitespace are trimmed from the right.
//   - Empty lines (after trim) are ignored: ok is false.
//   - The first unescaped ':' splits key and value; lines without ':' are
//     ignored: ok is false.
//   - key is the prefix as-is; value is the suffix as-is, with no further
//     trimming beyond the single leading space HTTP conventionally puts
//     after the colon being left in place if present — callers that want
//     it stripped do so themselves, matching the source's behavior of not
//     trimming the value.
//
// ParseHeaderLine allocates exactly the two returned strings and never
// reads past len(line).
func ParseHeaderLine(line []byte) (key, value string, ok bool) {
	end := len(line)
	for end > 0 {
		c := line[end-1]
		if c == '\r' || c == '\n' || c == ' ' || c == '\t' {
			end--
			continue
		}
		break
	}
	line = line[:end]

	if len(line) == 0 {
		return "", "", false
	}

	colon := -1
	for i := 0; i < len(line); i++ {
		if line[i] == ':' {
			colon = i
			break
		}
	}
	if colon < 0 {
		return "", "", false
	}

	return string(line[:colon]), string(line[colon+1:]), true
}
