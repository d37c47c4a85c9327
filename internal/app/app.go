// Package app wires together configuration, the logger, the local store and
// the analysis engines into a single Deps struct that commands receive at
// runtime.
package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/derickschaefer/lifeos/internal/analyze"
	"github.com/derickschaefer/lifeos/internal/config"
	"github.com/derickschaefer/lifeos/internal/energy"
	"github.com/derickschaefer/lifeos/internal/store"
)

// Deps holds all runtime dependencies injected into command Run functions.
// Store is nil until RequireStore is called.
type Deps struct {
	Config *config.Config
	Logger *slog.Logger
	Store  *store.Store
}

// New builds a Deps from resolved config. Log output goes to stderr.
func New(cfg *config.Config) *Deps {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter builds a Deps whose logger writes to w.
func NewWithWriter(cfg *config.Config, w io.Writer) *Deps {
	level := slog.LevelWarn
	switch {
	case cfg.Debug:
		level = slog.LevelDebug
	case cfg.Verbose:
		level = slog.LevelInfo
	}
	return &Deps{
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})),
	}
}

// RequireStore opens the local database if it is not already open.
func (d *Deps) RequireStore() error {
	if d.Store != nil {
		return nil
	}
	if d.Config.DBPath == "" {
		return errors.New("no database path: set --db, LIFEOS_DB_PATH or db_path in config.json")
	}
	s, err := store.Open(d.Config.DBPath)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	d.Logger.Debug("store opened", "path", d.Config.DBPath)
	d.Store = s
	return nil
}

// Close releases the store, if open.
func (d *Deps) Close() error {
	if d.Store == nil {
		return nil
	}
	err := d.Store.Close()
	d.Store = nil
	return err
}

// Analyzer builds a pattern analyzer from the configured thresholds.
func (d *Deps) Analyzer() *analyze.Analyzer {
	return analyze.New(d.Config.Analysis, d.Logger)
}

// Predictor builds an untrained energy predictor from the configured options.
func (d *Deps) Predictor() *energy.Predictor {
	return energy.NewPredictor(d.Config.Energy, d.Logger)
}

// LoadPredictor builds a predictor from the stored model parameters.
func (d *Deps) LoadPredictor() (*energy.Predictor, error) {
	if err := d.RequireStore(); err != nil {
		return nil, err
	}
	params, ok, err := d.Store.GetModelParams()
	if err != nil {
		return nil, fmt.Errorf("reading model params: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: run 'lifeos energy train' first", energy.ErrNotTrained)
	}
	p := d.Predictor()
	if err := p.LoadParams(params); err != nil {
		return nil, err
	}
	return p, nil
}
