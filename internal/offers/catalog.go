// Package offers implements the rule-based credit product recommendation
// path: a static catalog, a simulated client base and a deterministic
// offer engine.
package offers

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Catalog holds the product list and client base loaded at startup.
// Read-only after load; safe for unsynchronized concurrent reads.
type Catalog struct {
	Products []domain.OfferProduct
	clients  map[string]domain.ClientProfile
}

// LoadCatalog reads the product and client JSON files.
func LoadCatalog(productsPath, clientsPath string) (*Catalog, error) {
	var products []domain.OfferProduct
	if err := loadJSON(productsPath, &products); err != nil {
		return nil, fmt.Errorf("failed to load product catalog: %w", err)
	}

	var clients []domain.ClientProfile
	if err := loadJSON(clientsPath, &clients); err != nil {
		return nil, fmt.Errorf("failed to load client base: %w", err)
	}

	byID := make(map[string]domain.ClientProfile, len(clients))
	for _, c := range clients {
		byID[c.ID] = c
	}

	return &Catalog{Products: products, clients: byID}, nil
}

// NewCatalog builds a catalog from in-memory data, mostly for tests.
func NewCatalog(products []domain.OfferProduct, clients []domain.ClientProfile) *Catalog {
	byID := make(map[string]domain.ClientProfile, len(clients))
	for _, c := range clients {
		byID[c.ID] = c
	}
	return &Catalog{Products: products, clients: byID}
}

// Client looks up a profile by ID.
func (c *Catalog) Client(id string) (domain.ClientProfile, error) {
	profile, ok := c.clients[id]
	if !ok {
		return domain.ClientProfile{}, fmt.Errorf("%w: %s", domain.ErrClientNotFound, id)
	}
	return profile, nil
}

// ClientCount returns the number of loaded profiles.
func (c *Catalog) ClientCount() int {
	return len(c.clients)
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid JSON in %s: %w", path, err)
	}
	return nil
}
