// Package snapshot captures the state of the active CAD document.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bizmatters/cad-copilot/internal/host"
	"github.com/bizmatters/cad-copilot/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("context-snapshot")

// Field names used in ContextSnapshot.FieldErrors
const (
	FieldDocument   = "document"
	FieldSelection  = "selection"
	FieldParameters = "parameters"
	FieldComponents = "components"
	FieldUnits      = "units"
	FieldWorkspace  = "workspace"
)

// DefaultReadTimeout bounds one whole capture
const DefaultReadTimeout = 10 * time.Second

// Builder captures ContextSnapshots from a host
type Builder struct {
	reader      host.ContextReader
	tracer      trace.Tracer
	readTimeout time.Duration
}

// NewBuilder creates a snapshot builder reading through r
func NewBuilder(r host.ContextReader) *Builder {
	return &Builder{reader: r, tracer: tracer, readTimeout: DefaultReadTimeout}
}

// SetReadTimeout changes the capture deadline; d <= 0 is ignored
func (b *Builder) SetReadTimeout(d time.Duration) {
	if d > 0 {
		b.readTimeout = d
	}
}

// Capture never fails. When no document is open it returns the canonical
// empty snapshot with CaptureError set; otherwise every field is read in
// isolation and a fault in one leaves the others intact.
func (b *Builder) Capture(ctx context.Context) models.ContextSnapshot {
	ctx, span := b.tracer.Start(ctx, "snapshot.capture")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, b.readTimeout)
	defer cancel()

	snap := models.EmptySnapshot()

	var doc *models.DocumentInfo
	err := guard(func() error {
		var err error
		doc, err = b.reader.ActiveDocument(ctx)
		return err
	})
	if err != nil || doc == nil {
		msg := models.NoActiveDocument
		if err != nil && !errors.Is(err, host.ErrNoDocument) {
			snap.FieldErrors[FieldDocument] = err.Error()
			slog.Warn("document capture failed", "error", err)
		}
		snap.CaptureError = &msg
		span.SetAttributes(attribute.Bool("snapshot.has_document", false))
		return snap
	}
	snap.Document = doc

	b.field(&snap, FieldSelection, func() error {
		sel, err := b.reader.Selection(ctx)
		if err != nil {
			return err
		}
		if sel.Entities == nil {
			sel.Entities = []models.SelectedEntity{}
		}
		snap.Selection = sel
		return nil
	})
	b.field(&snap, FieldParameters, func() error {
		params, err := b.reader.Parameters(ctx)
		if err != nil {
			return err
		}
		if params != nil {
			snap.Parameters = params
		}
		return nil
	})
	b.field(&snap, FieldComponents, func() error {
		comps, err := b.reader.Components(ctx)
		if err != nil {
			return err
		}
		if comps != nil {
			snap.Components = comps
		}
		return nil
	})
	b.field(&snap, FieldUnits, func() error {
		units, err := b.reader.Units(ctx)
		if err != nil {
			return err
		}
		if units != "" {
			snap.Units = units
		}
		return nil
	})
	b.field(&snap, FieldWorkspace, func() error {
		ws, err := b.reader.Workspace(ctx)
		if err != nil {
			return err
		}
		if ws != "" {
			snap.Workspace = ws
		}
		return nil
	})

	span.SetAttributes(
		attribute.Bool("snapshot.has_document", true),
		attribute.Int("snapshot.parameters", len(snap.Parameters)),
		attribute.Int("snapshot.field_errors", len(snap.FieldErrors)),
	)
	return snap
}

// field runs one capture step, recording its fault instead of propagating it
func (b *Builder) field(snap *models.ContextSnapshot, name string, capture func() error) {
	if err := guard(capture); err != nil {
		snap.FieldErrors[name] = err.Error()
		slog.Warn("context field capture failed", "field", name, "error", err)
	}
}

// guard converts a panic in fn into an error
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
