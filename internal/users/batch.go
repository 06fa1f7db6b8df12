package users

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Action names a batch operation.
type Action string

// Batch actions.
const (
	ActionAssign  Action = "assign"
	ActionDismiss Action = "dismiss"
)

// BatchResult is the categorized outcome of one assign or dismiss call.
type BatchResult struct {
	Action Action
	// RoleKey is empty for dismissals, which resolve the role per user.
	RoleKey   string
	Bootstrap bool

	Affected []string
	NotFound []string
	Invalid  []string
	NoRole   []string
	Errors   []string

	Message        string
	NotFoundDetail string
	InvalidDetail  string
	NoRoleDetail   string
}

type assignResponse struct {
	Message       string   `json:"message,omitempty"`
	NotFound      string   `json:"not_found,omitempty"`
	Invalid       string   `json:"invalid,omitempty"`
	Errors        []string `json:"errors,omitempty"`
	Role          string   `json:"role"`
	AssignedUsers []string `json:"assigned_users"`
	NotFoundIDs   []string `json:"not_found_ids"`
	InvalidIDs    []string `json:"invalid_ids"`
}

type dismissResponse struct {
	Message        string   `json:"message,omitempty"`
	NotFound       string   `json:"not_found,omitempty"`
	NoRoles        string   `json:"no_roles,omitempty"`
	Errors         []string `json:"errors,omitempty"`
	DismissedUsers []string `json:"dismissed_users"`
	NotFoundIDs    []string `json:"not_found_ids"`
	NoRolesIDs     []string `json:"no_roles_ids"`
}

// MarshalJSON renders the report in the shape of the action.
func (r BatchResult) MarshalJSON() ([]byte, error) {
	if r.Action == ActionDismiss {
		return json.Marshal(dismissResponse{
			Message:        r.Message,
			NotFound:       r.NotFoundDetail,
			NoRoles:        r.NoRoleDetail,
			Errors:         r.Errors,
			DismissedUsers: nonNil(r.Affected),
			NotFoundIDs:    nonNil(r.NotFound),
			NoRolesIDs:     nonNil(r.NoRole),
		})
	}
	return json.Marshal(assignResponse{
		Message:       r.Message,
		NotFound:      r.NotFoundDetail,
		Invalid:       r.InvalidDetail,
		Errors:        r.Errors,
		Role:          r.RoleKey,
		AssignedUsers: nonNil(r.Affected),
		NotFoundIDs:   nonNil(r.NotFound),
		InvalidIDs:    nonNil(r.Invalid),
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// targets is a partitioned batch of raw ID tokens.
type targets struct {
	selfReference bool
	malformed     []string
	candidates    []int64
}

// partitionTargets splits tokens into self references, malformed tokens and
// candidate IDs. Candidate order follows the input.
func partitionTargets(tokens []string, actorID int64) targets {
	var t targets
	for _, raw := range tokens {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || id <= 0 {
			t.malformed = append(t.malformed, raw)
			continue
		}
		if id == actorID {
			t.selfReference = true
			continue
		}
		t.candidates = append(t.candidates, id)
	}
	return t
}

func article(noun string) string {
	if noun == "" {
		return ""
	}
	switch noun[0] {
	case 'a', 'e', 'i', 'o', 'u':
		return "an " + noun
	}
	return "a " + noun
}

func plural(noun string) string {
	if strings.HasSuffix(noun, "s") {
		return noun + "es"
	}
	return noun + "s"
}

func assignedMessage(usernames []string, display string) string {
	switch len(usernames) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("User %s has been assigned as %s.", usernames[0], article(display))
	}
	return fmt.Sprintf("Users %s have been assigned as %s.", strings.Join(usernames, ", "), plural(display))
}

// dismissedMessage names the role when every dismissed user held the same one.
func dismissedMessage(usernames []string, displays []string) string {
	switch len(usernames) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("User %s has been dismissed as %s.", usernames[0], article(displays[0]))
	}
	same := true
	for _, d := range displays[1:] {
		if d != displays[0] {
			same = false
			break
		}
	}
	if same {
		return fmt.Sprintf("Users %s have been dismissed as %s.", strings.Join(usernames, ", "), plural(displays[0]))
	}
	return fmt.Sprintf("Users %s have been dismissed from their roles.", strings.Join(usernames, ", "))
}

func notFoundMessage(ids []string) string {
	switch len(ids) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("User with ID %s was not found.", ids[0])
	}
	return fmt.Sprintf("Users with IDs %s were not found.", strings.Join(ids, ", "))
}

func invalidMessage(ids []string) string {
	switch len(ids) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("Invalid ID: %s.", ids[0])
	}
	return fmt.Sprintf("Invalid IDs: %s.", strings.Join(ids, ", "))
}

func noRoleMessage(ids []string) string {
	switch len(ids) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("User with ID %s doesn't have a role.", ids[0])
	}
	return fmt.Sprintf("Users with IDs %s don't have a role.", strings.Join(ids, ", "))
}
