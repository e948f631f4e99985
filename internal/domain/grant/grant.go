// Package grant defines the funding opportunity item ingested into nodes.
package grant

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/grantmesh/grantmesh/internal/domain"
)

// Grant is a single funding opportunity. Immutable after creation.
type Grant struct {
	id             string
	title          string
	provider       string
	silo           string
	fundingBody    string
	amountMin      float64
	amountMax      float64
	currency       string
	deadline       string
	sectors        []string
	description    string
	applicationURL string
	extra          map[string]string
}

// Attrs carries the raw ingestion fields for a grant.
type Attrs struct {
	ID             string
	Title          string
	Provider       string
	Silo           string
	FundingBody    string
	AmountMin      float64
	AmountMax      float64
	Currency       string
	Deadline       string
	Sectors        []string
	Description    string
	ApplicationURL string
	Extra          map[string]string
}

// New creates a grant. A missing id is derived deterministically from the
// title hash, so re-ingesting the same grant overwrites rather than duplicates.
func New(a Attrs) (Grant, error) {
	if strings.TrimSpace(a.Title) == "" {
		return Grant{}, fmt.Errorf("title is required: %w", domain.ErrInvalidArgument)
	}
	id := a.ID
	if id == "" {
		id = DeriveID(a.Title)
	}
	currency := a.Currency
	if currency == "" {
		currency = "GBP"
	}
	extra := make(map[string]string, len(a.Extra))
	for k, v := range a.Extra {
		extra[k] = v
	}
	return Grant{
		id:             id,
		title:          a.Title,
		provider:       a.Provider,
		silo:           a.Silo,
		fundingBody:    a.FundingBody,
		amountMin:      a.AmountMin,
		amountMax:      a.AmountMax,
		currency:       currency,
		deadline:       a.Deadline,
		sectors:        append([]string(nil), a.Sectors...),
		description:    a.Description,
		applicationURL: a.ApplicationURL,
		extra:          extra,
	}, nil
}

// DeriveID computes the deterministic id for a grant without an explicit one.
func DeriveID(title string) string {
	h := sha256.Sum256([]byte(strings.TrimSpace(strings.ToLower(title))))
	return "grant-" + hex.EncodeToString(h[:8])
}

// ID returns the grant identifier.
func (g *Grant) ID() string { return g.id }

// Title returns the grant title.
func (g *Grant) Title() string { return g.title }

// Provider returns the funding provider name.
func (g *Grant) Provider() string { return g.provider }

// Silo returns the geographic silo tag.
func (g *Grant) Silo() string { return g.silo }

// FundingBody returns the funding body code.
func (g *Grant) FundingBody() string { return g.fundingBody }

// Deadline returns the application deadline, empty when open-ended.
func (g *Grant) Deadline() string { return g.deadline }

// Sectors returns the sector tags.
func (g *Grant) Sectors() []string { return g.sectors }

// Description returns the grant description.
func (g *Grant) Description() string { return g.description }

// ApplicationURL returns the application link.
func (g *Grant) ApplicationURL() string { return g.applicationURL }

// SearchText returns the text blob embedded and scored for this grant.
func (g *Grant) SearchText() string {
	parts := []string{g.title, g.description}
	if len(g.sectors) > 0 {
		parts = append(parts, strings.Join(g.sectors, " "))
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Metadata flattens the grant into the metadata map stored alongside its
// vector. Only non-empty fields are emitted.
func (g *Grant) Metadata() map[string]string {
	m := make(map[string]string, len(g.extra)+8)
	for k, v := range g.extra {
		m[k] = v
	}
	m["title"] = g.title
	put(m, "provider", g.provider)
	put(m, "silo", g.silo)
	put(m, "funding_body", g.fundingBody)
	put(m, "currency", g.currency)
	put(m, "deadline", g.deadline)
	put(m, "application_url", g.applicationURL)
	if len(g.sectors) > 0 {
		m["sectors"] = strings.Join(g.sectors, ",")
	}
	if g.amountMin > 0 {
		m["amount_min"] = strconv.FormatFloat(g.amountMin, 'f', -1, 64)
	}
	if g.amountMax > 0 {
		m["amount_max"] = strconv.FormatFloat(g.amountMax, 'f', -1, 64)
	}
	return m
}

func put(m map[string]string, key, val string) {
	if val != "" {
		m[key] = val
	}
}
