package ctas

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// NotFoundError represents an error when a CTA does not exist
type NotFoundError struct {
	ID uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cta not found: %d", e.ID)
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(id uint) *NotFoundError {
	return &NotFoundError{ID: id}
}

// FindByID retrieves a CTA definition by primary key.
func FindByID(db *gorm.DB, id uint) (*Definition, error) {
	if id == 0 {
		return nil, NewNotFoundError(id)
	}

	var def Definition
	if err := db.Where("id = ?", id).First(&def).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError(id)
		}
		return nil, fmt.Errorf("unexpected error querying cta: %w", err)
	}
	return &def, nil
}

// Save creates the definition, or replaces it when it already has an ID.
func Save(db *gorm.DB, logger *slog.Logger, def *Definition) error {
	if def.Name == "" {
		return errors.New("cta name cannot be empty")
	}
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Save(def).Error
	})
}

// seedFile is the on-disk shape accepted by LoadDefinitions.
type seedFile struct {
	CTAs []Definition `yaml:"ctas"`
}

// LoadDefinitions decodes a YAML document with a top-level `ctas` list.
func LoadDefinitions(r io.Reader) ([]Definition, error) {
	var file seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode cta definitions: %w", err)
	}
	return file.CTAs, nil
}

// Import saves every definition, stopping at the first failure.
func Import(db *gorm.DB, logger *slog.Logger, defs []Definition) (int, error) {
	imported := 0
	for i := range defs {
		if err := Save(db, logger, &defs[i]); err != nil {
			return imported, fmt.Errorf("failed to import cta %q: %w", defs[i].Name, err)
		}
		imported++
	}
	logger.Info("Imported CTA definitions", slog.Int("count", imported))
	return imported, nil
}

// Catalog is a read-through cache in front of the definitions table.
type Catalog struct {
	cache *cache.Cache[string, *Definition]
}

// NewCatalog builds a catalog whose entries expire after ttl.
func NewCatalog(db *gorm.DB, logger *slog.Logger, ttl time.Duration) *Catalog {
	fetch := func(key string) (*Definition, error) {
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cta key %q: %w", key, err)
		}
		return FindByID(db, uint(id))
	}
	return &Catalog{cache: cache.NewCache[string, *Definition](logger, ttl, fetch)}
}

// Get returns the definition for id. Callers must not mutate the result.
func (c *Catalog) Get(id uint) (*Definition, error) {
	return c.cache.Get(strconv.FormatUint(uint64(id), 10))
}

// Invalidate drops every cached definition.
func (c *Catalog) Invalidate() {
	c.cache.Clear()
}
