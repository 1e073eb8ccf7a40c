package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// looseString accepts a JSON string or number; appsettings files written by
// different tools disagree on whether ports and GTINs are quoted.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*s = looseString(n.String())
	return nil
}

type productEntry struct {
	Name looseString `json:"Name"`
	Gtin looseString `json:"Gtin"`
}

// ReadProducts decodes a product list file: a JSON array of {Name, Gtin}
// objects. Entries missing either field are skipped. Later duplicates win.
func ReadProducts(r io.Reader) ([]Product, error) {
	var entries []productEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to parse product list: %w", err)
	}

	products := make([]Product, 0, len(entries))
	for _, e := range entries {
		if e.Name == "" || e.Gtin == "" {
			continue
		}
		products = append(products, Product{Name: string(e.Name), GTIN: string(e.Gtin)})
	}
	return products, nil
}

type appSettings struct {
	DataBase *struct {
		PostgreSql *struct {
			Server   looseString `json:"Server"`
			Port     looseString `json:"Port"`
			User     looseString `json:"User"`
			Password looseString `json:"Password"`
			DataBase looseString `json:"DataBase"`
		} `json:"PostgreSql"`
	} `json:"DataBase"`
}

// ErrNoPostgresSection is returned when an appsettings file has no
// DataBase.PostgreSql section.
var ErrNoPostgresSection = errors.New("DataBase.PostgreSql section not found")

// ParseAppSettings reads the PostgreSQL connection of a line controller's
// appsettings file into a Line.
func ParseAppSettings(r io.Reader) (Line, error) {
	var doc appSettings
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Line{}, fmt.Errorf("failed to parse appsettings: %w", err)
	}
	if doc.DataBase == nil || doc.DataBase.PostgreSql == nil {
		return Line{}, ErrNoPostgresSection
	}

	pg := doc.DataBase.PostgreSql
	line := Line{
		Host:     string(pg.Server),
		Port:     string(pg.Port),
		User:     string(pg.User),
		Password: string(pg.Password),
		Database: string(pg.DataBase),
	}
	if line.Port != "" {
		if _, err := strconv.Atoi(line.Port); err != nil {
			return Line{}, fmt.Errorf("invalid port %q in appsettings", line.Port)
		}
	}
	return line, nil
}
