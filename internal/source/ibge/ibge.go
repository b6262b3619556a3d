// Package ibge lists the municipalities of a Brazilian state through the IBGE
// Localidades API.
package ibge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JakeFAU/municipal-distances/internal/model"
	"github.com/JakeFAU/municipal-distances/internal/source"
)

// DefaultURL is the municipality listing endpoint; {uf} is replaced by the
// state code.
const DefaultURL = "https://servicodados.ibge.gov.br/api/v1/localidades/estados/{uf}/municipios"

// Client fetches municipality lists.
type Client struct {
	getter source.Getter
	url    string
}

// New builds a Client for stateCode. An empty urlTemplate uses DefaultURL.
func New(getter source.Getter, urlTemplate, stateCode string) *Client {
	if urlTemplate == "" {
		urlTemplate = DefaultURL
	}
	return &Client{getter: getter, url: strings.ReplaceAll(urlTemplate, "{uf}", stateCode)}
}

type municipality struct {
	ID   int    `json:"id"`
	Nome string `json:"nome"`
}

// Municipalities returns every municipality of the state in registry order.
func (c *Client) Municipalities(ctx context.Context) ([]model.Entity, error) {
	resp, err := c.getter.Get(ctx, c.url)
	if err != nil {
		return nil, fmt.Errorf("fetch municipalities: %w", err)
	}
	if err := resp.CheckStatus(); err != nil {
		return nil, fmt.Errorf("fetch municipalities: %w", err)
	}
	var items []municipality
	if err := json.Unmarshal(resp.Body, &items); err != nil {
		return nil, fmt.Errorf("decode municipalities: %w", err)
	}
	out := make([]model.Entity, 0, len(items))
	for _, item := range items {
		name := strings.TrimSpace(item.Nome)
		if name == "" || item.ID == 0 {
			continue
		}
		out = append(out, model.Entity{Name: name, ID: item.ID})
	}
	return out, nil
}
