// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

package targets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

// AdminRole is the role queried from the identity service.
const AdminRole = "VARDA-PAAKAYTTAJA"

// contactGroupWork is the address-group type allowed as an email source.
// Residential address groups exist in the same structure but must never
// be used for email.
const contactGroupWork = "TYOOSOITE"

// AdminUser is one admin-role holder and the organizations the role
// applies to.
type AdminUser struct {
	OID              string
	OrganizationOIDs []string
}

// Contact is the resolved email and locale of one user.
type Contact struct {
	Email    string
	Language string
}

// IdentityClient talks to the external identity service.
type IdentityClient interface {
	// AdminUsers lists every user holding the admin role, with the
	// organizations each role grant covers.
	AdminUsers(ctx context.Context) ([]AdminUser, error)

	// Contacts resolves email and language for the given user OIDs. Users
	// without a usable work email are absent from the result.
	Contacts(ctx context.Context, oids []string) (map[string]Contact, error)
}

// IdentityConfig holds the identity service client settings.
type IdentityConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	Timeout time.Duration `koanf:"timeout"`

	// RequestsPerSecond throttles outbound calls; the identity service is
	// shared infrastructure.
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// ContactChunkSize caps the OIDs per contact lookup request.
	ContactChunkSize int `koanf:"contact_chunk_size"`
}

// HTTPIdentityClient implements IdentityClient over HTTP JSON.
type HTTPIdentityClient struct {
	cfg     IdentityConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewIdentityClient creates an identity service client.
func NewIdentityClient(cfg IdentityConfig) *HTTPIdentityClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.ContactChunkSize <= 0 {
		cfg.ContactChunkSize = 500
	}
	return &HTTPIdentityClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

type adminUserResponse struct {
	UserOID       string `json:"user_oid"`
	Organizations []struct {
		OID   string   `json:"oid"`
		Roles []string `json:"roles"`
	} `json:"organizations"`
}

// AdminUsers implements IdentityClient.
func (c *HTTPIdentityClient) AdminUsers(ctx context.Context) ([]AdminUser, error) {
	url := fmt.Sprintf("%s/users?role=%s", c.cfg.BaseURL, AdminRole)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var rows []adminUserResponse
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode admin users: %w", err)
	}

	users := make([]AdminUser, 0, len(rows))
	for _, row := range rows {
		u := AdminUser{OID: row.UserOID}
		for _, org := range row.Organizations {
			for _, role := range org.Roles {
				if role == AdminRole {
					u.OrganizationOIDs = append(u.OrganizationOIDs, org.OID)
					break
				}
			}
		}
		if len(u.OrganizationOIDs) > 0 {
			users = append(users, u)
		}
	}
	return users, nil
}

type contactResponse struct {
	OID           string `json:"oid"`
	Language      string `json:"language"`
	ContactGroups []struct {
		ID    int64  `json:"id"`
		Type  string `json:"type"`
		Email string `json:"email"`
	} `json:"contact_groups"`
}

// Contacts implements IdentityClient.
func (c *HTTPIdentityClient) Contacts(ctx context.Context, oids []string) (map[string]Contact, error) {
	out := make(map[string]Contact, len(oids))
	for start := 0; start < len(oids); start += c.cfg.ContactChunkSize {
		end := start + c.cfg.ContactChunkSize
		if end > len(oids) {
			end = len(oids)
		}
		if err := c.contactChunk(ctx, oids[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *HTTPIdentityClient) contactChunk(ctx context.Context, oids []string, out map[string]Contact) error {
	payload, err := json.Marshal(map[string][]string{"oids": oids})
	if err != nil {
		return fmt.Errorf("encode contact request: %w", err)
	}

	body, err := c.post(ctx, c.cfg.BaseURL+"/contacts", payload)
	if err != nil {
		return err
	}

	var rows []contactResponse
	if err := json.Unmarshal(body, &rows); err != nil {
		return fmt.Errorf("decode contacts: %w", err)
	}

	for _, row := range rows {
		email, ok := pickWorkEmail(row)
		if !ok {
			continue
		}
		out[row.OID] = Contact{Email: email, Language: row.Language}
	}
	return nil
}

// pickWorkEmail selects the work address group with the largest id whose
// contact value parses as an email address.
func pickWorkEmail(row contactResponse) (string, bool) {
	var (
		bestID    int64
		bestEmail string
		found     bool
	)
	for _, g := range row.ContactGroups {
		if g.Type != contactGroupWork || g.Email == "" {
			continue
		}
		if _, err := mail.ParseAddress(g.Email); err != nil {
			continue
		}
		if !found || g.ID > bestID {
			bestID = g.ID
			bestEmail = g.Email
			found = true
		}
	}
	return bestEmail, found
}

func (c *HTTPIdentityClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build identity request: %w", err)
	}
	return c.do(req)
}

func (c *HTTPIdentityClient) post(ctx context.Context, url string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *HTTPIdentityClient) do(req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity service request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read identity response: %w", err)
	}
	return body, nil
}
