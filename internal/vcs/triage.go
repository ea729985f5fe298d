package vcs

import (
	"fmt"

	"github.com/releaseagent/pkg/models"
)

// Action is the triage decision for one unmerged path.
type Action int

const (
	// ActionResolveContent hands the file to the marker-level resolver.
	ActionResolveContent Action = iota
	// ActionKeepOurs restores the branch's version.
	ActionKeepOurs
	// ActionKeepTheirs restores the incoming version.
	ActionKeepTheirs
	// ActionDelete removes the path.
	ActionDelete
	// ActionManual means the state cannot be resolved automatically.
	ActionManual
)

func (a Action) String() string {
	switch a {
	case ActionResolveContent:
		return "resolve-content"
	case ActionKeepOurs:
		return "keep-ours"
	case ActionKeepTheirs:
		return "keep-theirs"
	case ActionDelete:
		return "delete"
	default:
		return "manual"
	}
}

// Triage maps a porcelain conflict state to an action under the given
// mode. Cherry-pick treats the incoming change as the source of truth;
// revert protects the branch's current state and only removes what the
// revert itself removes.
func Triage(xy string, mode models.Mode) (Action, string) {
	preferred := ActionKeepOurs
	if mode.PreferTheirs() {
		preferred = ActionKeepTheirs
	}

	switch xy {
	case "UU":
		return ActionResolveContent, "both sides modified: resolving conflict markers"

	case "DU":
		// Deleted on the branch, modified by the incoming change.
		if mode == models.ModeCherryPick {
			return ActionKeepTheirs, "modify/delete: accepting the incoming version"
		}
		return ActionKeepOurs, "modify/delete: keeping the current version"

	case "UD":
		// Modified on the branch, deleted by the incoming change.
		if mode == models.ModeCherryPick {
			return ActionDelete, "delete/modify: accepting the incoming deletion"
		}
		return ActionKeepOurs, "delete/modify: keeping the current version"

	case "AA":
		return preferred, fmt.Sprintf("add/add: both sides added the file, preferring %s", mode.PreferredLabel())

	case "DD":
		return ActionDelete, "both sides deleted the file"

	case "RD", "DR", "RR":
		return preferred, fmt.Sprintf("rename conflict [%s]: preferring %s", xy, mode.PreferredLabel())
	}

	return ActionManual, fmt.Sprintf("unknown conflict state [%s]", xy)
}
