package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fixmyarea-be/models"
	"fixmyarea-be/store"
)

type UserRepository struct {
	store store.Store
}

func NewUserRepository(s store.Store) *UserRepository {
	return &UserRepository{store: s}
}

// Create stores user under its UserID.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	user.ID = user.UserID
	doc, err := store.Encode(user)
	if err != nil {
		return err
	}
	if _, err := r.store.Create(ctx, store.CollectionUsers, user.UserID, doc); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	doc, err := r.store.Get(ctx, store.CollectionUsers, id)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return decodeUser(doc)
}

// Role reads the role stored for id. Missing or unknown roles read as user.
func (r *UserRepository) Role(ctx context.Context, id string) (models.Role, error) {
	doc, err := r.store.Get(ctx, store.CollectionUsers, id)
	if err != nil {
		return "", fmt.Errorf("get role of %s: %w", id, err)
	}
	role, _ := doc[models.FieldUserRole].(string)
	return models.ParseRole(role), nil
}

// Update applies fields (keyed by the models.FieldUser* names) to the user document.
func (r *UserRepository) Update(ctx context.Context, id string, fields store.Document) error {
	if err := r.store.Update(ctx, store.CollectionUsers, id, fields); err != nil {
		return fmt.Errorf("update user %s: %w", id, err)
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, store.CollectionUsers, id); err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	return nil
}

func (r *UserRepository) All(ctx context.Context) ([]*models.User, error) {
	docs, err := r.store.GetAll(ctx, store.CollectionUsers)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]*models.User, 0, len(docs))
	for _, doc := range docs {
		user, err := decodeUser(doc)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

// Count returns the number of stored users.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	docs, err := r.store.GetAll(ctx, store.CollectionUsers)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return len(docs), nil
}

func decodeUser(doc store.Document) (*models.User, error) {
	var user models.User
	if err := store.Decode(doc, &user); err != nil {
		return nil, err
	}
	if user.UserID == "" {
		user.UserID = user.ID
	}
	user.Role = models.ParseRole(string(user.Role))
	return &user, nil
}

type CredentialRepository struct {
	store store.Store
}

func NewCredentialRepository(s store.Store) *CredentialRepository {
	return &CredentialRepository{store: s}
}

// NormalizeEmail is the canonical form used for credential lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *CredentialRepository) Create(ctx context.Context, cred *models.Credential) error {
	cred.Email = NormalizeEmail(cred.Email)
	existing, err := r.store.QueryEqual(ctx, store.CollectionCredentials, "email", cred.Email)
	if err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("email %s: %w", cred.Email, store.ErrConflict)
	}
	doc, err := store.Encode(cred)
	if err != nil {
		return err
	}
	if _, err := r.store.Create(ctx, store.CollectionCredentials, cred.UserID, doc); err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

func (r *CredentialRepository) ByEmail(ctx context.Context, email string) (*models.Credential, error) {
	email = NormalizeEmail(email)
	docs, err := r.store.QueryEqual(ctx, store.CollectionCredentials, "email", email)
	if err != nil {
		return nil, fmt.Errorf("find credential: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("credential %s: %w", email, store.ErrNotFound)
	}
	var cred models.Credential
	if err := store.Decode(docs[0], &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *CredentialRepository) UpdatePassword(ctx context.Context, userID, hash string) error {
	err := r.store.Update(ctx, store.CollectionCredentials, userID, store.Document{"passwordHash": hash})
	if err != nil {
		return fmt.Errorf("update password of %s: %w", userID, err)
	}
	return nil
}

// Delete removes the credential of userID. A missing credential is not an error.
func (r *CredentialRepository) Delete(ctx context.Context, userID string) error {
	err := r.store.Delete(ctx, store.CollectionCredentials, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete credential of %s: %w", userID, err)
	}
	return nil
}
