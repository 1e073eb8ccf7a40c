// Package appstate holds the registries and the operator's current selection.
// Every mutation goes through State so subscribed views hear about it.
package appstate

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/codecheck/internal/notifier"
	"github.com/leapstack-labs/codecheck/internal/query"
	"github.com/leapstack-labs/codecheck/internal/registry"
)

// ErrExists is returned when an import would replace an entry without consent.
var ErrExists = errors.New("entry already exists")

// ErrNameRequired is returned when an entry is saved without a name.
var ErrNameRequired = errors.New("name is required")

// State owns both registries, the selection and the event bus.
type State struct {
	mu       sync.RWMutex
	lines    *registry.Lines
	products *registry.Products
	bus      *notifier.Notifier
	logger   *slog.Logger

	line    string
	product string
}

// New wraps already constructed stores. If bus is nil a new one is created.
func New(lines *registry.Lines, products *registry.Products, bus *notifier.Notifier, logger *slog.Logger) *State {
	if bus == nil {
		bus = notifier.New()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &State{
		lines:    lines,
		products: products,
		bus:      bus,
		logger:   logger,
	}
}

// Open creates stores for the two files and loads them.
func Open(linesPath, productsPath string, logger *slog.Logger) (*State, error) {
	s := New(registry.NewLines(linesPath, logger), registry.NewProducts(productsPath, logger), nil, logger)
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Notifier returns the event bus.
func (s *State) Notifier() *notifier.Notifier {
	return s.bus
}

// Paths returns the lines and products file paths.
func (s *State) Paths() (lines, products string) {
	return s.lines.Path(), s.products.Path()
}

// Reload re-reads both files concurrently and publishes both change events.
// A selection that no longer exists is cleared.
func (s *State) Reload() error {
	s.mu.Lock()
	var g errgroup.Group
	g.Go(s.lines.Load)
	g.Go(s.products.Load)
	err := g.Wait()
	selChanged := s.pruneSelectionLocked()
	s.mu.Unlock()

	s.bus.Publish(notifier.LinesChanged)
	s.bus.Publish(notifier.ProductsChanged)
	if selChanged {
		s.bus.Publish(notifier.SelectionChanged)
	}
	return err
}

// LineNames returns the line names in sorted order.
func (s *State) LineNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lines.Names()
}

// ProductNames returns the product names in sorted order.
func (s *State) ProductNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.products.Names()
}

// Line returns the named line.
func (s *State) Line(name string) (registry.Line, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lines.Get(name)
}

// Product returns the GTIN of the named product.
func (s *State) Product(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.products.Get(name)
}

// Lookups returns read views usable by query.Build.
func (s *State) Lookups() (query.LineLookup, query.ProductLookup) {
	return lineLookup{s}, productLookup{s}
}

type lineLookup struct{ s *State }

func (l lineLookup) Get(name string) (registry.Line, bool) { return l.s.Line(name) }

type productLookup struct{ s *State }

func (p productLookup) Get(name string) (string, bool) { return p.s.Product(name) }

// SaveLine validates and stores a line, renaming it when oldName differs.
// The event is published even when the file write fails, since memory holds
// the new value.
func (s *State) SaveLine(oldName, name string, line registry.Line) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	if err := line.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	err := s.lines.Put(oldName, name, line)
	selChanged := false
	if oldName != "" && oldName != name && s.line == oldName {
		s.line = name
		selChanged = true
	}
	s.mu.Unlock()

	s.logger.Info("line saved", slog.String("line", name), slog.Bool("renamed", oldName != "" && oldName != name))
	s.bus.Publish(notifier.LinesChanged)
	if selChanged {
		s.bus.Publish(notifier.SelectionChanged)
	}
	return err
}

// DeleteLine removes a line. Deleting the selected line clears the selection.
func (s *State) DeleteLine(name string) error {
	s.mu.Lock()
	if !s.lines.Has(name) {
		s.mu.Unlock()
		return fmt.Errorf("line %q: %w", name, registry.ErrNotFound)
	}
	err := s.lines.Delete(name)
	selChanged := s.line == name
	if selChanged {
		s.line = ""
	}
	s.mu.Unlock()

	s.logger.Info("line deleted", slog.String("line", name))
	s.bus.Publish(notifier.LinesChanged)
	if selChanged {
		s.bus.Publish(notifier.SelectionChanged)
	}
	return err
}

// ImportLine reads an appsettings document and stores it as name.
// An existing name is only replaced when overwrite is set.
func (s *State) ImportLine(name string, r io.Reader, overwrite bool) (registry.Line, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return registry.Line{}, ErrNameRequired
	}
	line, err := registry.ParseAppSettings(r)
	if err != nil {
		return registry.Line{}, err
	}
	if _, ok := s.Line(name); ok && !overwrite {
		return line, fmt.Errorf("line %q: %w", name, ErrExists)
	}
	return line, s.SaveLine("", name, line)
}

// SaveProduct validates and stores a product, renaming it when oldName differs.
func (s *State) SaveProduct(oldName string, p registry.Product) error {
	p.Name = strings.TrimSpace(p.Name)
	p.GTIN = strings.TrimSpace(p.GTIN)
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	err := s.products.Put(oldName, p.Name, p.GTIN)
	selChanged := false
	if oldName != "" && oldName != p.Name && s.product == oldName {
		s.product = p.Name
		selChanged = true
	}
	s.mu.Unlock()

	s.logger.Info("product saved", slog.String("product", p.Name), slog.String("gtin", p.GTIN))
	s.bus.Publish(notifier.ProductsChanged)
	if selChanged {
		s.bus.Publish(notifier.SelectionChanged)
	}
	return err
}

// DeleteProduct removes a product. Deleting the selected product clears the selection.
func (s *State) DeleteProduct(name string) error {
	s.mu.Lock()
	if !s.products.Has(name) {
		s.mu.Unlock()
		return fmt.Errorf("product %q: %w", name, registry.ErrNotFound)
	}
	err := s.products.Delete(name)
	selChanged := s.product == name
	if selChanged {
		s.product = ""
	}
	s.mu.Unlock()

	s.logger.Info("product deleted", slog.String("product", name))
	s.bus.Publish(notifier.ProductsChanged)
	if selChanged {
		s.bus.Publish(notifier.SelectionChanged)
	}
	return err
}

// ImportProducts merges a product list into the registry and returns how
// many entries were imported. Existing names are overwritten.
func (s *State) ImportProducts(r io.Reader) (int, error) {
	list, err := registry.ReadProducts(r)
	if err != nil {
		return 0, err
	}
	if len(list) == 0 {
		return 0, nil
	}

	items := make(map[string]string, len(list))
	for _, p := range list {
		items[p.Name] = p.GTIN
	}

	s.mu.Lock()
	err = s.products.PutMany(items)
	s.mu.Unlock()

	s.logger.Info("products imported", slog.Int("count", len(list)))
	s.bus.Publish(notifier.ProductsChanged)
	return len(list), err
}

// Selected returns the selected line and product names.
func (s *State) Selected() (line, product string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.line, s.product
}

// SelectLine changes the selected line. Unknown names clear the selection.
func (s *State) SelectLine(name string) {
	s.mu.Lock()
	if !s.lines.Has(name) {
		name = ""
	}
	changed := s.line != name
	s.line = name
	s.mu.Unlock()

	if changed {
		s.bus.Publish(notifier.SelectionChanged)
	}
}

// SelectProduct changes the selected product. Unknown names clear the selection.
func (s *State) SelectProduct(name string) {
	s.mu.Lock()
	if !s.products.Has(name) {
		name = ""
	}
	changed := s.product != name
	s.product = name
	s.mu.Unlock()

	if changed {
		s.bus.Publish(notifier.SelectionChanged)
	}
}

func (s *State) pruneSelectionLocked() bool {
	changed := false
	if s.line != "" && !s.lines.Has(s.line) {
		s.line = ""
		changed = true
	}
	if s.product != "" && !s.products.Has(s.product) {
		s.product = ""
		changed = true
	}
	return changed
}
