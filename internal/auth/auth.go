package auth

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"notify-fanout/internal/db"
)

// Client is an operator account authorized against the admin HTTP surface
// and billed through internal/billing for send credits.
type Client struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	APIKeyHash  string    `json:"-"`
	CreditCents int64     `json:"credit_cents"`
}

// Service authenticates API keys against bcrypt hashes stored in Postgres,
// adapted from the teacher's AuthService (which hardcoded the literal
// "secret" key as a demo shortcut — replaced here with a real lookup).
type Service struct {
	db     *db.PostgresDB
	logger *zap.Logger
}

func NewService(database *db.PostgresDB, logger *zap.Logger) *Service {
	return &Service{db: database, logger: logger}
}

func (a *Service) CreateClient(ctx context.Context, name, apiKey string) (*Client, error) {
	hashedKey, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash api key: %w", err)
	}

	client := &Client{
		ID:         uuid.New(),
		Name:       name,
		APIKeyHash: string(hashedKey),
	}

	_, err = a.db.ExecContext(ctx,
		`INSERT INTO clients (id, name, api_key_hash, credit_cents) VALUES ($1, $2, $3, $4)`,
		client.ID, client.Name, client.APIKeyHash, client.CreditCents)
	if err != nil {
		return nil, fmt.Errorf("insert client: %w", err)
	}

	return client, nil
}

// AuthenticateAPIKey scans every client row and bcrypt-compares apiKey
// against each hash. This is O(n) in client count, acceptable for an
// operator-facing admin surface with a small number of clients; a
// higher-volume deployment would index by a key prefix instead.
func (a *Service) AuthenticateAPIKey(ctx context.Context, apiKey string) (*Client, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT id, name, api_key_hash, credit_cents FROM clients`)
	if err != nil {
		return nil, fmt.Errorf("query clients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.APIKeyHash, &c.CreditCents); err != nil {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(c.APIKeyHash), []byte(apiKey)) == nil {
			return &c, nil
		}
	}

	return nil, fmt.Errorf("invalid api key")
}

func (a *Service) GetClientByID(ctx context.Context, clientID uuid.UUID) (*Client, error) {
	var client Client
	err := a.db.QueryRowContext(ctx,
		`SELECT id, name, api_key_hash, credit_cents FROM clients WHERE id = $1`, clientID).
		Scan(&client.ID, &client.Name, &client.APIKeyHash, &client.CreditCents)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("client not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}

	return &client, nil
}

// RequireAPIKey is fiber middleware authenticating the X-API-Key header.
func (a *Service) RequireAPIKey() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := c.Get("X-API-Key")
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing API key"})
		}

		client, err := a.AuthenticateAPIKey(c.Context(), apiKey)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid API key"})
		}

		c.Locals("client", client)
		return c.Next()
	}
}

// GetClientFromContext retrieves the authenticated Client stored by
// RequireAPIKey.
func GetClientFromContext(c *fiber.Ctx) (*Client, error) {
	client, ok := c.Locals("client").(*Client)
	if !ok {
		return nil, fmt.Errorf("client not found in context")
	}
	return client, nil
}
