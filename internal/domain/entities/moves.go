package entities

import "time"

// MoveTask takes task out of from and inserts it into to at index. When
// from and to are the same section the move is a reorder and index
// addresses the list without the task. Nothing changes on error.
func MoveTask(task *Task, from, to *Section, index int) error {
	pos, err := from.locateTask(task)
	if err != nil {
		return err
	}
	if from.ID == to.ID {
		if err := checkIndex(index, len(from.children.tasks)-1); err != nil {
			return err
		}
		from.removeTaskAt(pos)
		from.insertTaskAt(task, index)
		return nil
	}

	n, err := to.taskCapacity()
	if err != nil {
		return err
	}
	if err := checkIndex(index, n); err != nil {
		return err
	}
	from.removeTaskAt(pos)
	to.insertTaskAt(task, index)
	return nil
}

// MoveSection takes sub out of from and inserts it into to at index.
// Only the direct self-move is caught here; deeper cycles need the whole
// tree, see the hierarchy package.
func MoveSection(sub, from, to *Section, index int) error {
	if sub.IsRoot() {
		return ErrRootProtected
	}
	if to.ID == sub.ID {
		return ErrHierarchyCycle
	}
	pos, err := from.locateSubsection(sub)
	if err != nil {
		return err
	}
	if from.ID == to.ID {
		if err := checkIndex(index, len(from.children.subsections)-1); err != nil {
			return err
		}
		from.removeSubsectionAt(pos)
		from.insertSubsectionAt(sub, index)
		return nil
	}

	n, err := to.subsectionCapacity()
	if err != nil {
		return err
	}
	if err := checkIndex(index, n); err != nil {
		return err
	}
	from.removeSubsectionAt(pos)
	to.insertSubsectionAt(sub, index)
	return nil
}

// ToggleTaskCompleted flips the task's completion and keeps the section's
// active ordering in step with any archival change: an archived task
// leaves the ordering, an unarchived one is appended to its end.
func ToggleTaskCompleted(section *Section, task *Task, autoArchive bool, today time.Time) error {
	next := task.Clone()
	next.ToggleCompleted(autoArchive, today)
	return section.commitTask(task, next)
}

// ToggleTaskArchived flips archival and updates the section ordering
func ToggleTaskArchived(section *Section, task *Task) error {
	next := task.Clone()
	next.ToggleArchived()
	return section.commitTask(task, next)
}

// commitTask swaps next into task once the section can absorb the
// resulting archival change.
func (s *Section) commitTask(task, next *Task) error {
	if task.SectionID != s.ID {
		return ErrWrongOwner
	}
	archiving := next.IsArchived && !task.IsArchived
	unarchiving := !next.IsArchived && task.IsArchived

	pos := -1
	switch {
	case archiving:
		if s.children.kind == KindTasks {
			if !s.children.loaded {
				return ErrChildrenNotLoaded
			}
			pos = s.TaskIndex(task.ID)
		}
	case unarchiving:
		if _, err := s.taskCapacity(); err != nil {
			return err
		}
		if s.TaskIndex(task.ID) >= 0 {
			return ErrDuplicateChild
		}
	}

	*task = *next
	switch {
	case archiving && pos >= 0:
		s.removeTaskAt(pos)
	case unarchiving:
		s.insertTaskAt(task, len(s.children.tasks))
	}
	return nil
}
