package engine

import (
	"log"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"planadmin-backend/internal/config"
	"planadmin-backend/internal/metadata"
)

// Visibility applies role-based row filtering for tables with a configured
// policy. Privileged roles (and admins) see every record; everyone else
// sees only rows whose owner column matches their own user id, optionally
// narrowed further by a guard expression.
type Visibility struct {
	policies map[string]config.VisibilityPolicy

	mu    sync.Mutex
	cache map[string]*vm.Program
}

func NewVisibility(policies []config.VisibilityPolicy) *Visibility {
	m := make(map[string]config.VisibilityPolicy, len(policies))
	for _, p := range policies {
		m[p.Table] = p
	}
	return &Visibility{
		policies: m,
		cache:    make(map[string]*vm.Program),
	}
}

// CanSee reports whether the user may see the record. Tables without a
// policy are fully visible to any authenticated caller.
func (v *Visibility) CanSee(table string, user *metadata.UserContext, record Record) bool {
	policy, ok := v.policies[table]
	if !ok {
		return true
	}
	if user == nil {
		return false
	}
	if user.IsAdmin() {
		return true
	}
	for _, role := range policy.PrivilegedRoles {
		if user.HasRole(role) {
			return true
		}
	}

	if policy.OwnerColumn != "" {
		owner := metadata.NormalizeID(record[policy.OwnerColumn])
		if owner != user.ID {
			return false
		}
	}

	if policy.Guard != "" {
		ok, err := v.evaluateGuard(policy.Guard, map[string]any{
			"record": map[string]any(record),
			"user":   map[string]any{"id": user.ID, "roles": user.Roles},
		})
		if err != nil {
			log.Printf("WARN: visibility guard for %s failed: %v", table, err)
			return false
		}
		return ok
	}

	return true
}

// evaluateGuard compiles and caches guard programs by expression string.
func (v *Visibility) evaluateGuard(expression string, env map[string]any) (bool, error) {
	v.mu.Lock()
	prog, ok := v.cache[expression]
	v.mu.Unlock()
	if !ok {
		var err error
		prog, err = expr.Compile(expression, expr.AsBool())
		if err != nil {
			return false, err
		}
		v.mu.Lock()
		v.cache[expression] = prog
		v.mu.Unlock()
	}

	result, err := expr.Run(prog, env)
	if err != nil {
		return false, err
	}
	isTrue, ok := result.(bool)
	return ok && isTrue, nil
}
