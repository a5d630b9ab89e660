package memory

import (
	"encoding/json"
	"fmt"
	"os"

	"coursehub/internal/domain/entity"
)

// Fixtures is the layout of a SEED_FILE for the memory backend.
type Fixtures struct {
	Users   []*entity.User   `json:"users"`
	Courses []*entity.Course `json:"courses"`
}

func LoadFixtures(path string, users *UserRepository, courses *CourseRepository) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixtures: %w", err)
	}

	var fx Fixtures
	if err := json.Unmarshal(raw, &fx); err != nil {
		return fmt.Errorf("decode fixtures %s: %w", path, err)
	}
	for _, u := range fx.Users {
		users.Put(u)
	}
	for _, c := range fx.Courses {
		courses.Put(c)
	}
	return nil
}
