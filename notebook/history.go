package notebook

import "sync"

// snapshot is a document's full expression list at one moment.
type snapshot []string

// history keeps bounded undo/redo stacks per document, in memory.
// A restart forgets edit history but never document content.
type history struct {
	mu    sync.Mutex
	depth int
	undo  map[int64][]snapshot
	redo  map[int64][]snapshot
}

func newHistory(depth int) *history {
	return &history{
		depth: depth,
		undo:  make(map[int64][]snapshot),
		redo:  make(map[int64][]snapshot),
	}
}

// Record pushes the pre-mutation state onto the undo stack and clears the
// redo stack. The oldest entry falls off once the stack is at depth.
func (h *history) Record(docID int64, s snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stack := append(h.undo[docID], s)
	if len(stack) > h.depth {
		stack = stack[len(stack)-h.depth:]
	}
	h.undo[docID] = stack
	delete(h.redo, docID)
}

// Undo exchanges the current state for the most recent undo snapshot.
// The second return is false when there is nothing to undo.
func (h *history) Undo(docID int64, current snapshot) (snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stack := h.undo[docID]
	if len(stack) == 0 {
		return nil, false
	}
	top := stack[len(stack)-1]
	h.undo[docID] = stack[:len(stack)-1]
	h.redo[docID] = h.push(h.redo[docID], current)
	return top, true
}

// Redo exchanges the current state for the most recent redo snapshot.
func (h *history) Redo(docID int64, current snapshot) (snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stack := h.redo[docID]
	if len(stack) == 0 {
		return nil, false
	}
	top := stack[len(stack)-1]
	h.redo[docID] = stack[:len(stack)-1]
	h.undo[docID] = h.push(h.undo[docID], current)
	return top, true
}

func (h *history) CanUndo(docID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo[docID]) > 0
}

func (h *history) CanRedo(docID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redo[docID]) > 0
}

// Forget drops both stacks for a document, for delete and import.
func (h *history) Forget(docID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.undo, docID)
	delete(h.redo, docID)
}

func (h *history) push(stack []snapshot, s snapshot) []snapshot {
	stack = append(stack, s)
	if len(stack) > h.depth {
		stack = stack[len(stack)-h.depth:]
	}
	return stack
}
