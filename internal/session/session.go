// Package session builds the authenticated principal from the bearer token
// and local configuration.
package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sadopc/crewclock/internal/config"
	"github.com/sadopc/crewclock/internal/model"
)

// ErrNoEmployee means neither the token nor the config names an employee.
var ErrNoEmployee = errors.New("no employee id in token or config (session.employee_id)")

// claims are the JWT payload fields crewclock reads. The signature is not
// checked here; the backend verifies every request.
type claims struct {
	Role         string `json:"role"`
	EmployeeID   string `json:"employeeId"`
	DepartmentID string `json:"departmentId"`
	Subject      string `json:"sub"`
}

// FromToken returns the principal for token. Claims win over config values;
// config fills whatever the token leaves out. Opaque (non-JWT) tokens are
// accepted and rely on config alone.
func FromToken(token string, cfg config.SessionConfig) (model.Principal, error) {
	p := model.Principal{
		EmployeeID:   cfg.EmployeeID,
		DepartmentID: cfg.DepartmentID,
		Role:         model.Role(cfg.Role),
		Token:        token,
	}

	if c, ok, err := decodeClaims(token); err != nil {
		return model.Principal{}, err
	} else if ok {
		if c.EmployeeID == "" {
			c.EmployeeID = c.Subject
		}
		if c.EmployeeID != "" {
			p.EmployeeID = c.EmployeeID
		}
		if c.DepartmentID != "" {
			p.DepartmentID = c.DepartmentID
		}
		if c.Role != "" {
			p.Role = model.Role(c.Role)
		}
	}

	if p.EmployeeID == "" {
		return model.Principal{}, ErrNoEmployee
	}
	if p.Role == "" {
		p.Role = model.RoleEmployee
	}
	return p, nil
}

// decodeClaims reports ok=false for tokens that are not three dot-separated
// segments.
func decodeClaims(token string) (claims, bool, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return claims{}, false, nil
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return claims{}, false, fmt.Errorf("decode token payload: %w", err)
	}
	var c claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return claims{}, false, fmt.Errorf("parse token claims: %w", err)
	}
	return c, true, nil
}
