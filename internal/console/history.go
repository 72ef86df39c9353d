package console

// DefaultHistoryLimit is the number of commands kept for recall.
const DefaultHistoryLimit = 100

// History holds previously submitted commands, most recent first, without
// duplicates, plus the cursor used while browsing them.
type History struct {
	entries []string
	cursor  int
	limit   int
}

// NewHistory creates an empty history holding at most limit commands.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{
		entries: make([]string, 0, limit),
		cursor:  NoCursor,
		limit:   limit,
	}
}

// Push moves cmd to the front, evicting the oldest command on overflow.
// It also resets the cursor.
func (h *History) Push(cmd string) {
	h.cursor = NoCursor
	if cmd == "" {
		return
	}
	for i, existing := range h.entries {
		if existing == cmd {
			copy(h.entries[1:i+1], h.entries[:i])
			h.entries[0] = cmd
			return
		}
	}
	if len(h.entries) >= h.limit {
		h.entries = h.entries[:h.limit-1]
	}
	h.entries = append(h.entries, "")
	copy(h.entries[1:], h.entries)
	h.entries[0] = cmd
}

// Previous steps toward older commands. ok is false when already at the
// oldest command or when history is empty.
func (h *History) Previous() (cmd string, ok bool) {
	if h.cursor+1 >= len(h.entries) {
		return "", false
	}
	h.cursor++
	return h.entries[h.cursor], true
}

// Next steps toward newer commands. Stepping past the newest command
// returns to NoCursor with an empty cmd. ok is false at NoCursor.
func (h *History) Next() (cmd string, ok bool) {
	if h.cursor == NoCursor {
		return "", false
	}
	h.cursor--
	if h.cursor < 0 {
		h.cursor = NoCursor
		return "", true
	}
	return h.entries[h.cursor], true
}

// Cursor returns the current index or NoCursor.
func (h *History) Cursor() int {
	return h.cursor
}

// Len returns the number of stored commands.
func (h *History) Len() int {
	return len(h.entries)
}

// Entries returns a copy of the stored commands, most recent first.
func (h *History) Entries() []string {
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}
