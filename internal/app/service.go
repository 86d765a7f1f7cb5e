package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"flotta/api/internal/alerts"
	"flotta/api/internal/config"
	"flotta/api/internal/docstore"
	"flotta/api/internal/identity"
	"flotta/api/internal/metrics"
	"flotta/api/internal/normalize"
	"flotta/api/internal/timeline"
)

// Service runs reconciliation passes over the shared document store. Each
// pass fetches every source collection, builds a fresh resolver context and
// computes its view from scratch; nothing derived survives between passes.
type Service struct {
	cfg       config.Config
	store     docstore.Store
	schemas   *normalize.Registry
	lifecycle *alerts.LifecycleStore

	now func() time.Time
}

func New(cfg config.Config, store docstore.Store, schemas *normalize.Registry) *Service {
	return &Service{
		cfg:       cfg,
		store:     store,
		schemas:   schemas,
		lifecycle: alerts.NewLifecycleStore(store),
		now:       time.Now,
	}
}

// fetchAll reads the requested collections concurrently. There is no ordering
// dependency between them and a failed read degrades to an empty collection,
// so the pass always completes with whatever arrived.
func (s *Service) fetchAll(ctx context.Context, keys []string) timeline.Collections {
	results := make([][]normalize.Record, len(keys))
	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			results[i] = docstore.ReadList(ctx, s.store, key)
		}(i, key)
	}
	wg.Wait()

	cols := make(timeline.Collections, len(keys))
	for i, key := range keys {
		cols[key] = results[i]
		metrics.SourceRecordsRead.WithLabelValues(key).Add(float64(len(results[i])))
	}
	return cols
}

// DriverTimeline is the identity-scoped view for one badge.
type DriverTimeline struct {
	Badge       string           `json:"badge"`
	DisplayName string           `json:"displayName"`
	Events      []timeline.Event `json:"events"`
}

// Timeline aggregates, orders and derives the full timeline for a badge.
func (s *Service) Timeline(ctx context.Context, badge string) (DriverTimeline, error) {
	badge = normalize.NormalizeBadge(badge)
	if badge == "" {
		return DriverTimeline{}, domainError(400, "INVALID_BADGE", "badge is required", nil)
	}

	passID := uuid.NewString()
	start := s.now()
	cols := s.fetchAll(ctx, docstore.SourceKeys)
	res := timeline.BuildResolver(cols, s.schemas)

	events := timeline.Aggregate(cols, s.schemas, res, badge)
	timeline.DeriveChangeHistory(events)

	metrics.ReconcilePasses.Inc()
	metrics.TimelineEvents.Add(float64(len(events)))
	metrics.ReconcileDuration.Observe(float64(s.now().Sub(start).Milliseconds()))
	log.Printf("pass %s: driver %s timeline, %d events", passID, badge, len(events))

	return DriverTimeline{
		Badge:       badge,
		DisplayName: res.PrimaryName(badge),
		Events:      events,
	}, nil
}

// SearchDrivers resolves a free-text name to candidate badges. More than one
// match means the name is ambiguous; the caller picks.
func (s *Service) SearchDrivers(ctx context.Context, name string) ([]identity.NameMatch, error) {
	if normalize.NormalizeName(name) == "" {
		return nil, domainError(400, "INVALID_NAME", "name is required", nil)
	}
	cols := s.fetchAll(ctx, docstore.SourceKeys)
	res := timeline.BuildResolver(cols, s.schemas)
	return res.SearchByName(name), nil
}

// VehicleTimeline is the plate-scoped view, correlating legacy free-text
// plate fields through the near-match rule.
type VehicleTimeline struct {
	Targa  string           `json:"targa"`
	Events []timeline.Event `json:"events"`
}

func (s *Service) VehicleTimeline(ctx context.Context, targa string) (VehicleTimeline, error) {
	plate := normalize.NormalizePlate(targa)
	if plate == "" {
		return VehicleTimeline{}, domainError(400, "INVALID_TARGA", "targa is required", nil)
	}

	start := s.now()
	cols := s.fetchAll(ctx, docstore.SourceKeys)
	events := timeline.AggregateForPlate(cols, s.schemas, plate)
	timeline.DeriveChangeHistory(events)

	metrics.ReconcilePasses.Inc()
	metrics.TimelineEvents.Add(float64(len(events)))
	metrics.ReconcileDuration.Observe(float64(s.now().Sub(start).Milliseconds()))

	return VehicleTimeline{Targa: plate, Events: events}, nil
}

// AlertsView is the lifecycle-filtered alert list plus counts for badges in
// the dashboard chrome.
type AlertsView struct {
	Alerts     []alerts.Candidate `json:"alerts"`
	Total      int                `json:"total"`
	Suppressed int                `json:"suppressed"`
}

var alertSourceKeys = []string{docstore.KeyVehicles, docstore.KeyReports, docstore.KeySessions}

func (s *Service) generateCandidates(ctx context.Context, now int64) []alerts.Candidate {
	cols := s.fetchAll(ctx, alertSourceKeys)
	candidates := alerts.Generate(
		cols[docstore.KeyVehicles],
		cols[docstore.KeyReports],
		cols[docstore.KeySessions],
		s.schemas, now,
	)
	for _, c := range candidates {
		metrics.AlertCandidates.WithLabelValues(c.Meta.Type).Inc()
	}
	return candidates
}

// Alerts generates the current candidate set, reconciles the persisted
// lifecycle state against it and returns the visible remainder. The pruned
// state is written back; a failed write only costs the pruning, the next
// pass redoes it.
func (s *Service) Alerts(ctx context.Context) (AlertsView, error) {
	now := s.now().UnixMilli()
	start := s.now()

	candidates := s.generateCandidates(ctx, now)
	state := s.lifecycle.Load(ctx)
	reconciled := alerts.Reconcile(state, candidates, now)
	if len(reconciled.Items) != len(state.Items) {
		if err := s.lifecycle.Save(ctx, reconciled); err != nil {
			log.Printf("alerts: persisting pruned state failed: %v", err)
		}
	}

	visible := alerts.Visible(reconciled, candidates, now)
	metrics.ReconcilePasses.Inc()
	metrics.VisibleAlerts.Set(float64(len(visible)))
	metrics.ReconcileDuration.Observe(float64(s.now().Sub(start).Milliseconds()))

	return AlertsView{
		Alerts:     visible,
		Total:      len(candidates),
		Suppressed: len(candidates) - len(visible),
	}, nil
}

// AlertAction acknowledges or snoozes one alert. The action is recorded
// against the candidate's current fingerprint; acting on an alert that no
// longer exists is a 404.
func (s *Service) AlertAction(ctx context.Context, alertID, action string) error {
	now := s.now().UnixMilli()

	var meta alerts.Meta
	found := false
	for _, c := range s.generateCandidates(ctx, now) {
		if c.ID == alertID {
			meta = c.Meta
			found = true
			break
		}
	}
	if !found {
		return domainError(404, "ALERT_NOT_FOUND", fmt.Sprintf("no current alert %q", alertID), nil)
	}

	state := s.lifecycle.Load(ctx)
	next, err := alerts.ApplyAction(state, alertID, meta, action, now)
	if err != nil {
		return domainError(400, "INVALID_ACTION", err.Error(), nil)
	}
	if err := s.lifecycle.Save(ctx, next); err != nil {
		return fmt.Errorf("alert action: %w", err)
	}
	return nil
}

// RefreshVisibility is the periodic tick: it re-evaluates snooze expiry and
// updates the visible-alerts gauge. It never writes stored state.
func (s *Service) RefreshVisibility(ctx context.Context) {
	now := s.now().UnixMilli()
	candidates := s.generateCandidates(ctx, now)
	state := s.lifecycle.Load(ctx)
	visible := alerts.Visible(state, candidates, now)
	metrics.VisibleAlerts.Set(float64(len(visible)))
}

// Ping reports document store reachability when the backend supports it.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}
