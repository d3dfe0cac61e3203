package sitecookie

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Settings returns the tenant's cookie expiration settings.
func (m *Manager) Settings(ctx context.Context, tenantID int64) (Expirations, error) {
	settings, err := m.settings.GetExpirations(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("sitecookie: failed to load settings: %w", err)
	}
	return settings, nil
}

// SaveSettings replaces the tenant's cookie expiration settings.
func (m *Manager) SaveSettings(ctx context.Context, tenantID int64, settings Expirations) error {
	if err := m.settings.SetExpirations(ctx, tenantID, settings); err != nil {
		return fmt.Errorf("sitecookie: failed to save settings: %w", err)
	}
	return nil
}

// ExportSettings renders the tenant's settings as indented JSON. A tenant
// without settings exports an empty object.
func (m *Manager) ExportSettings(ctx context.Context, tenantID int64) ([]byte, error) {
	settings, err := m.Settings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		settings = Expirations{}
	}

	out, err := json.MarshalIndent(settings, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("sitecookie: failed to encode settings: %w", err)
	}
	return out, nil
}

// ImportSettings replaces the tenant's settings with data, which must be a JSON
// object of role names to integer seconds. On ErrInvalidSettings the previous
// settings are left untouched.
func (m *Manager) ImportSettings(ctx context.Context, tenantID int64, data []byte) error {
	settings, err := ParseSettings(data)
	if err != nil {
		m.log.Warn().Err(err).Int64("tenant_id", tenantID).Msg("rejected cookie settings import")
		return err
	}
	if err := m.SaveSettings(ctx, tenantID, settings); err != nil {
		return err
	}
	m.log.Info().Int64("tenant_id", tenantID).Int("roles", len(settings)).Msg("cookie settings imported")
	return nil
}

// ParseSettings validates and decodes a settings JSON document.
func ParseSettings(data []byte) (Expirations, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidSettings)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after object", ErrInvalidSettings)
	}

	settings := make(Expirations, len(raw))
	for role, v := range raw {
		n, ok := v.(json.Number)
		if !ok {
			return nil, fmt.Errorf("%w: role %q: expected integer seconds, got %T", ErrInvalidSettings, role, v)
		}
		seconds, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: role %q: %q is not an integer number of seconds", ErrInvalidSettings, role, n)
		}
		settings[role] = seconds
	}
	return settings, nil
}
