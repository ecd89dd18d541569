// Package access decides whether a caller may perform an action. Every mutation goes
// through Gate.Authorize before it touches storage.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fixmyarea-be/models"
	"fixmyarea-be/store"
)

var (
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("not signed in")
)

type AuthorizationError struct {
	Action string
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not allowed to %s: %s", e.Action, e.Reason)
}

func (e *AuthorizationError) Is(target error) bool {
	return target == ErrForbidden
}

// Action is something a caller asks to do.
type Action struct {
	Name      string
	AdminOnly bool

	// OwnerID, when set, restricts the action to that caller regardless of role.
	OwnerID string
}

func CreateIssue() Action    { return Action{Name: "createIssue"} }
func UpvoteIssue() Action    { return Action{Name: "upvoteIssue"} }
func CreateUser() Action     { return Action{Name: "createUser", AdminOnly: true} }
func DeleteUser() Action     { return Action{Name: "deleteUser", AdminOnly: true} }
func ReadStatistics() Action { return Action{Name: "readStatistics", AdminOnly: true} }
func ListUsers() Action      { return Action{Name: "listUsers", AdminOnly: true} }

func UpdateUserRole() Action {
	return Action{Name: "updateUserRole", AdminOnly: true}
}

func TransitionIssue(to models.IssueStatus) Action {
	return Action{Name: "transitionIssue(" + string(to) + ")", AdminOnly: true}
}

func UpdateOwnProfile(targetID string) Action {
	return Action{Name: "updateOwnProfile", OwnerID: targetID}
}

// RoleSource reads a caller's stored role.
type RoleSource interface {
	Role(ctx context.Context, callerID string) (models.Role, error)
}

type Gate struct {
	roles RoleSource
	log   *slog.Logger
}

func NewGate(roles RoleSource, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{roles: roles, log: log}
}

// Role returns the caller's role, resolving it through the RoleSource on first use in s.
func (g *Gate) Role(ctx context.Context, s *Session) (models.Role, error) {
	if s == nil || s.Closed() {
		return "", ErrUnauthenticated
	}
	role, ok, gen := s.cachedRole()
	if ok {
		return role, nil
	}
	role, err := g.roles.Role(ctx, s.callerID)
	if err != nil {
		return "", err
	}
	s.cacheRole(role, gen)
	return role, nil
}

// Authorize returns nil when s may perform a, or an *AuthorizationError. Store failures
// while resolving the role are returned as they are and nothing is cached.
func (g *Gate) Authorize(ctx context.Context, s *Session, a Action) error {
	if s == nil || s.Closed() {
		return ErrUnauthenticated
	}
	if a.OwnerID != "" {
		if s.callerID != a.OwnerID {
			return g.deny(s, a, "caller is not the owner")
		}
		return nil
	}
	if !a.AdminOnly {
		return nil
	}
	role, err := g.Role(ctx, s)
	if errors.Is(err, store.ErrNotFound) {
		return g.deny(s, a, "caller has no user record")
	}
	if err != nil {
		return fmt.Errorf("resolve role: %w", err)
	}
	if role != models.RoleAdmin {
		return g.deny(s, a, "admin role required")
	}
	return nil
}

func (g *Gate) deny(s *Session, a Action, reason string) error {
	g.log.Info("access denied", "caller", s.callerID, "action", a.Name, "reason", reason)
	return &AuthorizationError{Action: a.Name, Reason: reason}
}
