// Package accounts manages user records on behalf of admins and lets users edit their own
// profile.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fixmyarea-be/access"
	"fixmyarea-be/events"
	"fixmyarea-be/identity"
	"fixmyarea-be/models"
	"fixmyarea-be/objectstore"
	"fixmyarea-be/store"
	"fixmyarea-be/utils"
)

type Registrar interface {
	Register(ctx context.Context, in identity.SignUpInput, role models.Role) (*models.User, error)
	Unregister(ctx context.Context, userID string) error
	EndSessions(ctx context.Context, callerID string) error
}

type UserStore interface {
	Get(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, id string, fields store.Document) error
	All(ctx context.Context) ([]*models.User, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, s *access.Session, a access.Action) error
}

type Deps struct {
	Identity  Registrar
	Users     UserStore
	Sessions  *access.Sessions
	Gate      Authorizer
	Objects   objectstore.Client
	Publisher events.Publisher
	Logger    *slog.Logger
}

type Service struct {
	identity  Registrar
	users     UserStore
	sessions  *access.Sessions
	gate      Authorizer
	objects   objectstore.Client
	publisher events.Publisher
	log       *slog.Logger
}

func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Publisher == nil {
		d.Publisher = events.NewLogPublisher(d.Logger)
	}
	return &Service{
		identity:  d.Identity,
		users:     d.Users,
		sessions:  d.Sessions,
		gate:      d.Gate,
		objects:   d.Objects,
		publisher: d.Publisher,
		log:       d.Logger,
	}
}

// CreateUser registers an account with the given role. Only admins may create accounts
// here, which is also the only way an admin account comes into existence besides a role
// change.
func (s *Service) CreateUser(ctx context.Context, session *access.Session, in identity.SignUpInput, role models.Role) (*models.User, error) {
	if err := s.gate.Authorize(ctx, session, access.CreateUser()); err != nil {
		return nil, err
	}
	if role == "" {
		role = models.RoleUser
	}
	user, err := s.identity.Register(ctx, in, role)
	if err != nil {
		return nil, err
	}
	s.log.Info("user created by admin", "user_id", user.UserID, "role", user.Role, "actor", session.CallerID())
	return user, nil
}

// UpdateUserRole writes the new role and drops the role cached in the user's live
// sessions so the change applies to their next request.
func (s *Service) UpdateUserRole(ctx context.Context, session *access.Session, userID string, role models.Role) (*models.User, error) {
	if err := s.gate.Authorize(ctx, session, access.UpdateUserRole()); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, models.Invalid("role", "unknown role %q", role)
	}
	if err := s.users.Update(ctx, userID, store.Document{models.FieldUserRole: string(role)}); err != nil {
		return nil, err
	}
	s.sessions.InvalidateCaller(userID)

	s.log.Info("user role changed", "user_id", userID, "role", role, "actor", session.CallerID())
	events.Emit(ctx, s.publisher, s.log, events.UserRoleChanged, events.UserRoleChangedEvent{
		UserID:  userID,
		Role:    string(role),
		ActorID: session.CallerID(),
	})
	return s.users.Get(ctx, userID)
}

// DeleteUser removes the user and their credential and signs them out everywhere.
// Issues they reported stay.
func (s *Service) DeleteUser(ctx context.Context, session *access.Session, userID string) error {
	if err := s.gate.Authorize(ctx, session, access.DeleteUser()); err != nil {
		return err
	}
	if err := s.identity.Unregister(ctx, userID); err != nil {
		return err
	}
	if err := s.identity.EndSessions(ctx, userID); err != nil {
		return err
	}

	s.log.Info("user deleted", "user_id", userID, "actor", session.CallerID())
	events.Emit(ctx, s.publisher, s.log, events.UserDeleted, events.UserDeletedEvent{
		UserID:  userID,
		ActorID: session.CallerID(),
	})
	return nil
}

func (s *Service) ListUsers(ctx context.Context, session *access.Session) ([]*models.User, error) {
	if err := s.gate.Authorize(ctx, session, access.ListUsers()); err != nil {
		return nil, err
	}
	return s.users.All(ctx)
}

// ProfilePatch holds the profile fields to change. Nil fields are left as they are.
type ProfilePatch struct {
	UserName *string `json:"userName" validate:"omitempty,min=1,max=50"`
	Phone    *string `json:"phone" validate:"omitempty,max=30"`
	NID      *string `json:"nid" validate:"omitempty,max=30"`
}

func (p *ProfilePatch) empty() bool {
	return p.UserName == nil && p.Phone == nil && p.NID == nil
}

// UpdateProfile applies patch and, when image is given, uploads it as the new profile
// picture. A caller may only edit their own profile.
func (s *Service) UpdateProfile(ctx context.Context, session *access.Session, userID string, patch ProfilePatch, image *objectstore.Blob) (*models.User, error) {
	if err := s.gate.Authorize(ctx, session, access.UpdateOwnProfile(userID)); err != nil {
		return nil, err
	}
	if patch.UserName != nil {
		trimmed := strings.TrimSpace(*patch.UserName)
		if trimmed == "" {
			return nil, models.Invalid("userName", "is required")
		}
		patch.UserName = &trimmed
	}
	if err := utils.ValidateStruct(patch); err != nil {
		return nil, err
	}
	if patch.empty() && image == nil {
		return nil, models.Invalid("", "nothing to update")
	}

	fields := store.Document{}
	if patch.UserName != nil {
		fields[models.FieldUserName] = *patch.UserName
	}
	if patch.Phone != nil {
		fields[models.FieldUserPhone] = strings.TrimSpace(*patch.Phone)
	}
	if patch.NID != nil {
		fields[models.FieldUserNID] = strings.TrimSpace(*patch.NID)
	}
	if image != nil {
		if s.objects == nil {
			return nil, errors.New("profile image upload: no object store configured")
		}
		url, err := s.objects.Upload(ctx, *image, objectstore.FolderProfileImages)
		if errors.Is(err, objectstore.ErrRejected) {
			return nil, models.Invalid("profileImage", "%v", err)
		}
		if err != nil {
			return nil, fmt.Errorf("upload profile image: %w", err)
		}
		fields[models.FieldUserProfileImage] = url
	}

	if err := s.users.Update(ctx, userID, fields); err != nil {
		return nil, err
	}
	return s.users.Get(ctx, userID)
}
