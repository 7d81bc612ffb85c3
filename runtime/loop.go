package runtime

import "fmt"

// LoopContext tracks one active loop, keyed by its loopStart node id.
type LoopContext struct {
	Kind     string
	StartID  string
	EndID    string
	Index    int
	Total    int
	MaxCount int
	Broken   bool
	items    []Value
	itemVar  string
	indexVar string
}

// activeLoop returns the context of a loopStart, if that loop is running.
func (e *Execution) activeLoop(startID string) (*LoopContext, bool) {
	lc, ok := e.loops[startID]
	return lc, ok
}

func (e *Execution) pushLoop(lc *LoopContext) {
	e.loops[lc.StartID] = lc
	e.loopStack = append(e.loopStack, lc.StartID)
}

// popLoop discards a loop context. Loops nested inside it are discarded too,
// which only happens when a break or continue left them early.
func (e *Execution) popLoop(startID string) {
	for i := len(e.loopStack) - 1; i >= 0; i-- {
		id := e.loopStack[i]
		delete(e.loops, id)
		e.loopStack = e.loopStack[:i]
		if id == startID {
			return
		}
	}
}

// innermostLoop is the most recently entered loop still running.
func (e *Execution) innermostLoop() (*LoopContext, bool) {
	if len(e.loopStack) == 0 {
		return nil, false
	}
	return e.loops[e.loopStack[len(e.loopStack)-1]], true
}

func (lc *LoopContext) bind(vars *VariableStore) {
	if lc.Kind == LoopForEach {
		vars.Set(lc.itemVar, lc.items[lc.Index])
	}
	vars.Set(lc.indexVar, Number(float64(lc.Index)))
}

func (lc *LoopContext) String() string {
	if lc.Kind == LoopForEach {
		return fmt.Sprintf("forEach %s [%d/%d]", lc.StartID, lc.Index+1, lc.Total)
	}
	return fmt.Sprintf("while %s [%d/%d]", lc.StartID, lc.Index+1, lc.MaxCount)
}
