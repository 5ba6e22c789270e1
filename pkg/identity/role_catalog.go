package identity

import (
	"context"
	"fmt"
	"strings"
)

// RoleCatalog maps role names to their provisioned ids. It is loaded once at startup.
type RoleCatalog struct {
	ids   map[Role]int
	names map[int]Role
}

// LoadRoleCatalog reads all roles and fails when any of required is not provisioned.
// A missing role is a configuration error; there is no fallback id.
func LoadRoleCatalog(ctx context.Context, repo Repository, required []Role) (*RoleCatalog, error) {
	roles, err := repo.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	catalog := NewRoleCatalog(roles)

	var missing []string
	for _, r := range required {
		if _, ok := catalog.ids[r]; !ok {
			missing = append(missing, string(r))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required roles are not provisioned: %s", strings.Join(missing, ", "))
	}
	return catalog, nil
}

func NewRoleCatalog(roles map[Role]int) *RoleCatalog {
	c := &RoleCatalog{ids: make(map[Role]int, len(roles)), names: make(map[int]Role, len(roles))}
	for name, id := range roles {
		c.ids[name] = id
		c.names[id] = name
	}
	return c
}

func (c *RoleCatalog) Id(role Role) (int, error) {
	id, ok := c.ids[role]
	if !ok {
		return 0, fmt.Errorf("role %s is not provisioned", role)
	}
	return id, nil
}

func (c *RoleCatalog) Name(id int) (Role, bool) {
	name, ok := c.names[id]
	return name, ok
}
