// Package principal models the authenticated identity behind a request.
package principal

import (
	"fmt"
	"strings"
)

// Principal is the identity resolved from provider authorizer claims or a
// verified token.
type Principal struct {
	ID     string         `json:"id"`
	Email  string         `json:"email,omitempty"`
	Roles  []string       `json:"roles,omitempty"`
	Claims map[string]any `json:"claims"`
}

// idClaims are tried in order to find the principal id.
var idClaims = []string{"sub", "principalId", "userId", "oid", "username", "cognito:username"}

// FromClaims builds a Principal from a claim set. It returns nil when claims
// is empty.
func FromClaims(claims map[string]any) *Principal {
	if len(claims) == 0 {
		return nil
	}
	p := &Principal{Claims: claims}
	for _, key := range idClaims {
		if v, ok := claims[key]; ok {
			if s := fmt.Sprint(v); s != "" {
				p.ID = s
				break
			}
		}
	}
	if email, ok := claims["email"].(string); ok {
		p.Email = email
	}
	p.Roles = rolesFrom(claims)
	return p
}

// HasRole reports whether the principal carries role.
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Claim returns a claim as a string.
func (p *Principal) Claim(name string) string {
	if p == nil {
		return ""
	}
	v, ok := p.Claims[name]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// rolesFrom reads roles from the first of "roles", "cognito:groups" and
// "groups" that is present. Claim values may be lists or comma/space separated strings,
// since API Gateway flattens JWT claims into strings.
func rolesFrom(claims map[string]any) []string {
	for _, key := range []string{"roles", "cognito:groups", "groups"} {
		switch v := claims[key].(type) {
		case []string:
			return v
		case []any:
			roles := make([]string, 0, len(v))
			for _, r := range v {
				roles = append(roles, fmt.Sprint(r))
			}
			return roles
		case string:
			return splitList(v)
		}
	}
	return nil
}

func splitList(s string) []string {
	s = strings.Trim(s, "[]")
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) == 0 {
		return nil
	}
	return fields
}
