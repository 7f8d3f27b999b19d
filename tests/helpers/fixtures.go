package helpers

import "github.com/bizmatters/cad-copilot/internal/models"

// TestOperator is an operator fixture with its clear-text password
type TestOperator struct {
	Name     string
	Email    string
	Password string
	Roles    []string
}

// Default test fixtures
var (
	DefaultTestOperator = TestOperator{
		Name:     "Test Operator",
		Email:    "operator@example.com",
		Password: "test-password-123",
		Roles:    []string{models.RoleOperator},
	}

	DefaultHostOperator = TestOperator{
		Name:     "Workstation Add-in",
		Email:    "addin@example.com",
		Password: "host-password-123",
		Roles:    []string{models.RoleHost},
	}
)

// Scripts understood by the in-memory host
const (
	ParameterScript = "set_parameter(\"Width\", \"40\", \"mm\")\nprint(\"width set\")"
	FailingScript   = "set_parameter(\"Width\", \"99\", \"mm\")\nraise AttributeError(\"'NoneType' object has no attribute 'sketches'\")"
)
