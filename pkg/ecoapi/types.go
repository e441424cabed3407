package ecoapi

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// FlexID is an identifier the backend may send as a JSON number or string.
type FlexID string

// UnmarshalJSON accepts numbers, strings and null.
func (id *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return eris.Wrap(err, "ecoapi: decode id")
		}
		*id = FlexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return eris.Wrap(err, "ecoapi: decode id")
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*id = FlexID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = FlexID(n.String())
	return nil
}

// String returns the id text.
func (id FlexID) String() string { return string(id) }

// Center is a collection center as returned by the backend.
type Center struct {
	ID                 FlexID   `json:"id"`
	Name               string   `json:"name"`
	Company            string   `json:"company"`
	Address            string   `json:"address"`
	Phone              string   `json:"phone"`
	Email              string   `json:"email"`
	Hours              string   `json:"hours"`
	Description        string   `json:"description"`
	Latitude           *float64 `json:"latitude"`
	Longitude          *float64 `json:"longitude"`
	AcceptedWasteTypes []string `json:"accepted_waste_types"`
	AcceptedTypes      []string `json:"acceptedTypes"`
	Rating             *float64 `json:"rating"`
}

// WasteTypes returns the accepted categories from whichever field the
// backend populated, de-duplicated case-insensitively.
func (c Center) WasteTypes() []string {
	var out []string
	seen := make(map[string]bool)
	for _, list := range [][]string{c.AcceptedWasteTypes, c.AcceptedTypes} {
		for _, t := range list {
			key := strings.ToLower(strings.TrimSpace(t))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, strings.TrimSpace(t))
		}
	}
	return out
}

// CenterQuery holds optional server-side filters for ListCenters.
type CenterQuery struct {
	Search     string
	WasteTypes []string
	OpenNow    bool
}

// Tokens are the bearer credentials for the backend.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Empty reports whether no access token is held.
func (t Tokens) Empty() bool { return t.AccessToken == "" }

// User is the account returned by login, registration and the profile
// endpoints.
type User struct {
	ID           FlexID `json:"id"`
	UserName     string `json:"user_name"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	PointScore   int    `json:"point_score"`
	ProfileImage string `json:"profile_image,omitempty"`
}

// UnmarshalJSON accepts "points" as an alias of "point_score".
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var aux struct {
		plain
		Points *int `json:"points"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*u = User(aux.plain)
	if u.PointScore == 0 && aux.Points != nil {
		u.PointScore = *aux.Points
	}
	return nil
}

// Registration is the payload of a new account.
type Registration struct {
	UserName      string `json:"user_name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	Role          string `json:"role,omitempty"`
	TermsApproved bool   `json:"terms_approved"`
}

// decodeUser accepts a bare user object or one wrapped in "user" or "data".
func decodeUser(body []byte) (*User, error) {
	var env struct {
		User *User `json:"user"`
		Data *User `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, eris.Wrap(err, "ecoapi: decode user")
	}
	switch {
	case env.User != nil:
		return env.User, nil
	case env.Data != nil:
		return env.Data, nil
	}
	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, eris.Wrap(err, "ecoapi: decode user")
	}
	if u.ID == "" && u.Email == "" && u.UserName == "" {
		return nil, eris.New("ecoapi: profile response has no user")
	}
	return &u, nil
}

// Session is the result of a login.
type Session struct {
	Tokens
	Message string `json:"message"`
	User    *User  `json:"user"`
}

// decodeCenterList accepts a bare array or an object with a "data" or
// "centers" array. Elements that are not center objects are skipped.
func decodeCenterList(body []byte) ([]Center, int, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, 0, eris.New("ecoapi: empty centers response")
	}

	var raw []json.RawMessage
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, 0, eris.Wrap(err, "ecoapi: decode centers")
		}
	case '{':
		var env struct {
			Data    []json.RawMessage `json:"data"`
			Centers []json.RawMessage `json:"centers"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, 0, eris.Wrap(err, "ecoapi: decode centers envelope")
		}
		raw = env.Data
		if raw == nil {
			raw = env.Centers
		}
	default:
		return nil, 0, eris.New("ecoapi: centers response is not a list")
	}

	out := make([]Center, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		r = bytes.TrimSpace(r)
		if len(r) == 0 || r[0] != '{' {
			skipped++
			continue
		}
		var c Center
		if err := json.Unmarshal(r, &c); err != nil {
			skipped++
			continue
		}
		out = append(out, c)
	}
	return out, skipped, nil
}

// decodeCenter accepts a bare object or one wrapped in {"data": {...}}.
func decodeCenter(body []byte) (*Center, error) {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, eris.Wrap(err, "ecoapi: decode center")
	}
	payload := body
	if d := bytes.TrimSpace(env.Data); len(d) > 0 && d[0] == '{' {
		payload = d
	}
	var c Center
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, eris.Wrap(err, "ecoapi: decode center")
	}
	return &c, nil
}
