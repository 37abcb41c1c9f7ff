package token

// Claims are the fields decoded from a verified token
type Claims map[string]interface{}

// Strings returns the values of a collection claim. A JSON array yields its
// string members, a single string yields a one element collection, and a
// missing claim or any other type yields nil.
func (c Claims) Strings(name string) []string {
	switch v := c[name].(type) {
	case []interface{}:
		values := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				values = append(values, s)
			}
		}
		return values
	case []string:
		return v
	case string:
		return []string{v}
	default:
		return nil
	}
}

// Subject returns the "sub" claim
func (c Claims) Subject() string {
	sub, _ := c["sub"].(string)
	return sub
}

// HasRole checks if the collection claim contains role
func (c Claims) HasRole(claim, role string) bool {
	for _, r := range c.Strings(claim) {
		if r == role {
			return true
		}
	}
	return false
}
