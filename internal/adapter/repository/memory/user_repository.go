package memory

import (
	"context"
	"strings"
	"sync"

	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/repository"
	"coursehub/pkg/errors"
)

type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*entity.User
}

func NewUserRepository(users ...*entity.User) *UserRepository {
	r := &UserRepository{users: make(map[string]*entity.User)}
	for _, u := range users {
		r.Put(u)
	}
	return r
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) Put(u *entity.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.ID] = &cp
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepository) GetByIDs(_ context.Context, ids []string) ([]*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

type CourseRepository struct {
	mu      sync.RWMutex
	courses map[string]*entity.Course
}

func NewCourseRepository(courses ...*entity.Course) *CourseRepository {
	r := &CourseRepository{courses: make(map[string]*entity.Course)}
	for _, c := range courses {
		r.Put(c)
	}
	return r
}

var _ repository.CourseRepository = (*CourseRepository)(nil)

func (r *CourseRepository) Put(c *entity.Course) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	cp.Students = append([]string(nil), c.Students...)
	r.courses[c.ID] = &cp
}

func (r *CourseRepository) GetByID(_ context.Context, id string) (*entity.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.courses[id]
	if !ok {
		return nil, errors.NotFound("Course", nil)
	}
	cp := *c
	return &cp, nil
}

func (r *CourseRepository) GetByCode(_ context.Context, code string) (*entity.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.courses {
		if strings.EqualFold(c.Code, code) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, errors.NotFound("Course", nil)
}
