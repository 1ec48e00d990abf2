// Package policy decides whether an actor may perform an action on a piece
// of content. It has no side effects and does no I/O; every mutating
// operation in the forum consults CanPerform before touching storage.
package policy

// Action is an operation subject to authorization.
type Action int

const (
	Edit Action = iota + 1
	Delete
	Lock
	Resolve
	Restore
	Comment
)

func (a Action) String() string {
	switch a {
	case Edit:
		return "edit"
	case Delete:
		return "delete"
	case Lock:
		return "lock"
	case Resolve:
		return "resolve"
	case Restore:
		return "restore"
	case Comment:
		return "comment"
	}
	return "unknown"
}

// Actor is the identity performing an action. IsModerator comes from the
// session's role snapshot.
type Actor struct {
	ID          int
	IsModerator bool
}

// Target describes the content being acted on. For Comment it is the
// parent post.
type Target struct {
	OwnerID   int
	IsLocked  bool
	IsDeleted bool
}

// CanPerform reports whether actor may perform action on target.
//
// Rules, first match wins:
//  1. Comment on a locked target is denied, moderators included.
//  2. Lock, Resolve and Restore require a moderator.
//  3. Edit and Delete require a moderator or the owner.
//  4. Comment on a live, unlocked target is allowed.
//  5. Anything else is denied.
func CanPerform(actor Actor, action Action, target Target) bool {
	switch action {
	case Comment:
		if target.IsLocked {
			return false
		}
		return !target.IsDeleted
	case Lock, Resolve, Restore:
		return actor.IsModerator
	case Edit, Delete:
		return actor.IsModerator || actor.ID == target.OwnerID
	}
	return false
}
