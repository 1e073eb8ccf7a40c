package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrIncomplete is returned when a required field is empty.
var ErrIncomplete = errors.New("all fields are required")

// Line is a named PostgreSQL connection profile.
// JSON keys match the profiles.json files already deployed on the floor.
type Line struct {
	Host     string `json:"ip"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"dbname"`
}

// UnmarshalJSON accepts each field as a JSON string or number. Files written
// by hand often carry "port": 5432. Lines are always written back as strings.
func (l *Line) UnmarshalJSON(data []byte) error {
	var raw struct {
		Host     looseString `json:"ip"`
		Port     looseString `json:"port"`
		User     looseString `json:"user"`
		Password looseString `json:"password"`
		Database looseString `json:"dbname"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = Line{
		Host:     string(raw.Host),
		Port:     string(raw.Port),
		User:     string(raw.User),
		Password: string(raw.Password),
		Database: string(raw.Database),
	}
	return nil
}

// Validate reports every empty field of the line.
func (l Line) Validate() error {
	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{"ip", l.Host},
		{"port", l.Port},
		{"user", l.User},
		{"password", l.Password},
		{"dbname", l.Database},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	return nil
}

// Product maps a product name to its GTIN.
type Product struct {
	Name string
	GTIN string
}

// Validate reports an empty name or GTIN.
func (p Product) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "" && strings.TrimSpace(p.GTIN) == "":
		return fmt.Errorf("%w: missing name, gtin", ErrIncomplete)
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: missing name", ErrIncomplete)
	case strings.TrimSpace(p.GTIN) == "":
		return fmt.Errorf("%w: missing gtin", ErrIncomplete)
	}
	return nil
}

// Lines is the line registry (profiles.json).
type Lines = Store[Line]

// Products is the product registry (products.json), name to GTIN.
type Products = Store[string]

// NewLines creates a line registry bound to path.
func NewLines(path string, logger *slog.Logger) *Lines {
	return NewStore[Line](path, logger)
}

// NewProducts creates a product registry bound to path.
func NewProducts(path string, logger *slog.Logger) *Products {
	return NewStore[string](path, logger)
}
