package repository

import (
	"context"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/repository"
	"coursehub/pkg/errors"
)

type firestoreUserRepository struct {
	client *firestore.Client
}

func NewFirestoreUserRepository(client *firestore.Client) repository.UserRepository {
	return &firestoreUserRepository{
		client: client,
	}
}

func (r *firestoreUserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	doc, err := r.client.Collection("users").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("User", err)
		}
		return nil, errors.Internal("Failed to get user", err)
	}

	var user entity.User
	if err := doc.DataTo(&user); err != nil {
		return nil, errors.Internal("Failed to parse user data", err)
	}
	user.ID = doc.Ref.ID
	return &user, nil
}

func (r *firestoreUserRepository) GetByIDs(ctx context.Context, ids []string) ([]*entity.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, r.client.Collection("users").Doc(id))
	}

	docs, err := r.client.GetAll(ctx, refs)
	if err != nil {
		return nil, errors.Internal("Failed to get users", err)
	}

	users := make([]*entity.User, 0, len(docs))
	for _, doc := range docs {
		if !doc.Exists() {
			continue
		}
		var user entity.User
		if err := doc.DataTo(&user); err != nil {
			return nil, errors.Internal("Failed to parse user data", err)
		}
		user.ID = doc.Ref.ID
		users = append(users, &user)
	}
	return users, nil
}

type firestoreCourseRepository struct {
	client *firestore.Client
}

func NewFirestoreCourseRepository(client *firestore.Client) repository.CourseRepository {
	return &firestoreCourseRepository{
		client: client,
	}
}

func (r *firestoreCourseRepository) GetByID(ctx context.Context, id string) (*entity.Course, error) {
	doc, err := r.client.Collection("courses").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Course", err)
		}
		return nil, errors.Internal("Failed to get course", err)
	}
	return decodeCourse(doc)
}

// GetByCode expects codes to be stored upper-case, which is how courses are
// created elsewhere on the platform.
func (r *firestoreCourseRepository) GetByCode(ctx context.Context, code string) (*entity.Course, error) {
	iter := r.client.Collection("courses").
		Where("code", "==", strings.ToUpper(strings.TrimSpace(code))).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, errors.NotFound("Course", nil)
	}
	if err != nil {
		return nil, errors.Internal("Failed to find course", err)
	}
	return decodeCourse(doc)
}

func decodeCourse(doc *firestore.DocumentSnapshot) (*entity.Course, error) {
	var course entity.Course
	if err := doc.DataTo(&course); err != nil {
		return nil, errors.Internal("Failed to parse course data", err)
	}
	course.ID = doc.Ref.ID
	return &course, nil
}
