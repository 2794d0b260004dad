package ctrdecrypt

// Progress receives progress updates of long operations. It never affects results.
type Progress interface {
	// Begin a new task of total units.
	Begin(task string, total int64)
	// Advance the current task to current units.
	Advance(current int64)
	// End the current task.
	End()
}

type nopProgress struct{}

func (nopProgress) Begin(string, int64) {}
func (nopProgress) Advance(int64)       {}
func (nopProgress) End()                {}
