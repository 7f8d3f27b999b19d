package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/bizmatters/cad-copilot/internal/config"
	"github.com/bizmatters/cad-copilot/internal/models"
	"github.com/bizmatters/cad-copilot/internal/store"
)

const (
	// MinPasswordLength is the minimum password length requirement
	MinPasswordLength = 8
	// BcryptCost is the cost factor for bcrypt hashing (10 = ~100ms)
	BcryptCost = 10
)

var (
	emailRegex = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	hasLetter  = regexp.MustCompile(`[a-zA-Z]`)
	hasNumber  = regexp.MustCompile(`[0-9]`)
)

func main() {
	name := flag.String("name", "", "Full name of the operator (required)")
	email := flag.String("email", "", "Email address (required)")
	password := flag.String("password", "", "Password (required, min 8 chars)")
	roles := flag.String("roles", models.RoleOperator, "Comma-separated roles: operator, host")
	configPath := flag.String("config", os.Getenv("COPILOT_CONFIG"), "Path to the service configuration")
	flag.Parse()

	if err := initTracer(); err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}

	roleList, err := parseRoles(*roles)
	if err != nil {
		log.Fatalf("Validation error: %v", err)
	}
	if err := validateInputs(*name, *email, *password); err != nil {
		log.Fatalf("Validation error: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("Failed to open run store: %v", err)
	}
	defer st.Close()
	log.Printf("Connected to %s store", cfg.Store.Driver)

	op, err := createOperator(ctx, st, *name, *email, *password, roleList)
	if err != nil {
		log.Fatalf("Failed to create operator: %v", err)
	}

	log.Printf("✓ Successfully created operator")
	log.Printf("  ID: %s", op.ID)
	log.Printf("  Name: %s", op.Name)
	log.Printf("  Email: %s", op.Email)
	log.Printf("  Roles: %s", strings.Join(op.Roles, ","))
}

// validateInputs validates operator input according to security requirements
func validateInputs(name, email, password string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name is required and cannot be empty")
	}

	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}

	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
	}

	if !hasLetter.MatchString(password) || !hasNumber.MatchString(password) {
		return fmt.Errorf("password must contain at least one letter and one number")
	}

	return nil
}

// parseRoles splits a comma-separated role list and rejects unknown roles
func parseRoles(raw string) ([]string, error) {
	var roles []string
	for _, r := range strings.Split(raw, ",") {
		r = strings.ToLower(strings.TrimSpace(r))
		switch r {
		case "":
			continue
		case models.RoleOperator, models.RoleHost:
			roles = append(roles, r)
		default:
			return nil, fmt.Errorf("unknown role %q", r)
		}
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("at least one role is required")
	}
	return roles, nil
}

// createOperator hashes the password and stores the operator
func createOperator(ctx context.Context, st store.Store, name, email, password string, roles []string) (*models.Operator, error) {
	tracer := otel.Tracer("seed-operator")
	ctx, span := tracer.Start(ctx, "create_operator")
	defer span.End()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	op := &models.Operator{
		Name:           name,
		Email:          strings.ToLower(strings.TrimSpace(email)),
		HashedPassword: string(hashedPassword),
		Roles:          roles,
	}
	if err := st.CreateOperator(ctx, op); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("operator with email %s already exists", email)
		}
		return nil, err
	}
	return op, nil
}

// initTracer initializes OpenTelemetry tracing
func initTracer() error {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)

	return nil
}
