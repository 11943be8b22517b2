package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role type to distinguish between user roles
type Role string

// Define constants for roles
const (
	RoleClient      Role = "CLIENT"
	RoleTrainer     Role = "TRAINER"
	RoleCoordinator Role = "COORDINATOR"
	RoleAdmin       Role = "ADMIN"
)

// roleAliases maps the spellings found in existing gym data to canonical roles.
var roleAliases = map[string]Role{
	"CLIENT":        RoleClient,
	"CLIENTE":       RoleClient,
	"USER":          RoleClient,
	"TRAINER":       RoleTrainer,
	"ENTRENADOR":    RoleTrainer,
	"COACH":         RoleTrainer,
	"PROFE":         RoleTrainer,
	"PROF":          RoleTrainer,
	"COORDINATOR":   RoleCoordinator,
	"COORDINADOR":   RoleCoordinator,
	"ADMIN":         RoleAdmin,
	"ADMINISTRADOR": RoleAdmin,
}

// ParseRole normalizes a raw role string (case-insensitive, aliases allowed).
func ParseRole(raw string) (Role, error) {
	role, ok := roleAliases[strings.ToUpper(strings.TrimSpace(raw))]
	if !ok {
		return "", Validation("role.parse", "unknown role %q", raw)
	}
	return role, nil
}

// User represents a person known to the gym: a client or a staff member.
type User struct {
	ID           uuid.UUID  `json:"id"`
	DNI          string     `json:"dni"` // Unique national id, digits only
	FirstName    string     `json:"firstName,omitempty"`
	LastName     string     `json:"lastName,omitempty"`
	Role         Role       `json:"role"`
	Active       bool       `json:"active"`
	TrainerID    *uuid.UUID `json:"trainerId,omitempty"` // Clients only: the staff member they are assigned to
	PasswordHash string     `json:"-"`                   // Staff only, never exposed
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (u *User) IsClient() bool {
	return u.Role == RoleClient
}

func (u *User) IsStaff() bool {
	return u.Role == RoleTrainer || u.Role == RoleCoordinator || u.Role == RoleAdmin
}

// IsAssignedTo reports whether the client is managed by the given staff member.
func (u *User) IsAssignedTo(staffID uuid.UUID) bool {
	return u.TrainerID != nil && *u.TrainerID == staffID
}

func (u *User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// NormalizeDNI trims the input and checks it is 7 to 9 digits long.
func NormalizeDNI(raw string) (string, error) {
	dni := strings.TrimSpace(raw)
	if dni == "" {
		return "", Validation("user.dni", "DNI is required")
	}
	for _, r := range dni {
		if r < '0' || r > '9' {
			return "", Validation("user.dni", "DNI must contain only digits")
		}
	}
	if len(dni) < 7 || len(dni) > 9 {
		return "", Validation("user.dni", "DNI must have between 7 and 9 digits")
	}
	return dni, nil
}
