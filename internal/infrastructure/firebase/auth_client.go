package firebase

import (
	"context"

	"firebase.google.com/go/v4/auth"

	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/service"
	"coursehub/pkg/errors"
)

type FirebaseAuthClient struct {
	client *auth.Client
}

func NewFirebaseAuthClient(client *auth.Client) *FirebaseAuthClient {
	return &FirebaseAuthClient{
		client: client,
	}
}

var _ service.IdentityVerifier = (*FirebaseAuthClient)(nil)

// Verify checks a Firebase ID token. The platform stores the user's role as
// a custom claim.
func (f *FirebaseAuthClient) Verify(ctx context.Context, token string) (*entity.Identity, error) {
	result, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return nil, errors.Unauthorized("Invalid or expired token", err)
	}

	id := &entity.Identity{
		UserID: result.UID,
		Role:   entity.RoleStudent,
	}
	if role, ok := result.Claims["role"].(string); ok && role != "" {
		id.Role = role
	}
	if name, ok := result.Claims["name"].(string); ok {
		id.Name = name
	}
	if email, ok := result.Claims["email"].(string); ok {
		id.Email = email
	}
	return id, nil
}

// TestConnection performs a cheap authenticated call for health checks.
func (f *FirebaseAuthClient) TestConnection(ctx context.Context) error {
	_, err := f.client.GetUserByEmail(ctx, "healthcheck@coursehub.invalid")
	if err != nil && !auth.IsUserNotFound(err) {
		return err
	}
	return nil
}
