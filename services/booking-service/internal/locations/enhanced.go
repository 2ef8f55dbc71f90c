package locations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/staffops/libs/resilience"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/geocoding"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/workflow"
)

// Breaker categories.
const (
	CategoryGeocode = "geocode"
	CategoryCreate  = "create"
	CategoryUpdate  = "update"
	CategoryApprove = "approve"
	CategoryReject  = "reject"
	CategoryDelete  = "delete"
	CategoryFetch   = "fetch"
)

type Geocoder interface {
	ValidateAddress(ctx context.Context, address string) (bool, error)
	Geocode(ctx context.Context, address string) (*geocoding.Result, error)
}

type WriteOptions struct {
	// ValidateAddress rejects the write when the address does not resolve.
	ValidateAddress bool
}

// Enhanced adds geocoding, per-category circuit breakers and correlated
// domain events to a Base service.
type Enhanced struct {
	base      Base
	geocoder  Geocoder
	publisher events.Publisher
	breakers  *resilience.Registry
	logger    *slog.Logger
}

func NewEnhanced(base Base, geocoder Geocoder, publisher events.Publisher, breakers *resilience.Registry, logger *slog.Logger) *Enhanced {
	if breakers == nil {
		breakers = resilience.NewRegistry(5, 0, resilience.WithFailurePredicate(CountsAsFailure))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enhanced{base: base, geocoder: geocoder, publisher: publisher, breakers: breakers, logger: logger}
}

// CountsAsFailure reports whether err indicates an unhealthy dependency.
// Caller mistakes such as unknown ids do not trip breakers.
func CountsAsFailure(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, workflow.ErrNotFound),
		errors.Is(err, workflow.ErrValidation),
		errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func (s *Enhanced) Create(ctx context.Context, in model.Location) (model.Location, error) {
	return s.CreateLocation(ctx, in, WriteOptions{})
}

func (s *Enhanced) Update(ctx context.Context, in model.Location) (model.Location, error) {
	return s.UpdateLocation(ctx, in, WriteOptions{})
}

func (s *Enhanced) CreateLocation(ctx context.Context, in model.Location, opts WriteOptions) (model.Location, error) {
	ctx, _ = events.EnsureCorrelationID(ctx)

	if opts.ValidateAddress {
		if err := s.validate(ctx, in.Address); err != nil {
			return model.Location{}, err
		}
	}
	s.applyGeocode(ctx, &in)

	out, err := resilience.Call(s.breakers.Get(CategoryCreate), func() (model.Location, error) {
		return s.base.Create(ctx, in)
	})
	if err != nil {
		return model.Location{}, err
	}
	s.publish(ctx, events.LocationCreated, out)
	return out, nil
}

// UpdateLocation merges in onto the stored location. Coordinates are only
// replaced when the new address geocodes.
func (s *Enhanced) UpdateLocation(ctx context.Context, in model.Location, opts WriteOptions) (model.Location, error) {
	ctx, _ = events.EnsureCorrelationID(ctx)

	cur, err := s.GetByID(ctx, in.ID)
	if err != nil {
		return model.Location{}, err
	}
	merged := cur
	if in.Name != "" {
		merged.Name = in.Name
	}
	addressChanged := in.Address != "" && in.Address != cur.Address
	if addressChanged {
		merged.Address = in.Address
	}

	if opts.ValidateAddress {
		if err := s.validate(ctx, merged.Address); err != nil {
			return model.Location{}, err
		}
	}
	if addressChanged || merged.Latitude == nil || merged.Longitude == nil {
		s.applyGeocode(ctx, &merged)
	}

	out, err := resilience.Call(s.breakers.Get(CategoryUpdate), func() (model.Location, error) {
		return s.base.Update(ctx, merged)
	})
	if err != nil {
		return model.Location{}, err
	}
	s.publish(ctx, events.LocationUpdated, out)
	return out, nil
}

func (s *Enhanced) Approve(ctx context.Context, id, reviewerID, notes string) (model.Location, error) {
	ctx, _ = events.EnsureCorrelationID(ctx)
	out, err := resilience.Call(s.breakers.Get(CategoryApprove), func() (model.Location, error) {
		return s.base.Approve(ctx, id, reviewerID, notes)
	})
	if err != nil {
		return model.Location{}, err
	}
	s.publish(ctx, events.LocationApproved, out)
	return out, nil
}

func (s *Enhanced) Reject(ctx context.Context, id, reviewerID, notes string) (model.Location, error) {
	ctx, _ = events.EnsureCorrelationID(ctx)
	out, err := resilience.Call(s.breakers.Get(CategoryReject), func() (model.Location, error) {
		return s.base.Reject(ctx, id, reviewerID, notes)
	})
	if err != nil {
		return model.Location{}, err
	}
	s.publish(ctx, events.LocationRejected, out)
	return out, nil
}

func (s *Enhanced) Delete(ctx context.Context, id string) error {
	ctx, _ = events.EnsureCorrelationID(ctx)
	err := s.breakers.Execute(CategoryDelete, func() error {
		return s.base.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events.LocationDeleted, model.Location{ID: id})
	return nil
}

func (s *Enhanced) GetByID(ctx context.Context, id string) (model.Location, error) {
	return resilience.Call(s.breakers.Get(CategoryFetch), func() (model.Location, error) {
		return s.base.GetByID(ctx, id)
	})
}

// validate fails only when the geocoder positively rejects the address. An
// unavailable geocoder is logged and the write goes ahead.
func (s *Enhanced) validate(ctx context.Context, address string) error {
	if s.geocoder == nil {
		return nil
	}
	ok, err := resilience.Call(s.breakers.Get(CategoryGeocode), func() (bool, error) {
		return s.geocoder.ValidateAddress(ctx, address)
	})
	if err != nil {
		s.logger.Warn("address validation unavailable",
			"err", err,
			"correlation_id", events.CorrelationID(ctx),
		)
		return nil
	}
	if !ok {
		return fmt.Errorf("address %q could not be resolved: %w", address, workflow.ErrValidation)
	}
	return nil
}

func (s *Enhanced) applyGeocode(ctx context.Context, l *model.Location) {
	if s.geocoder == nil || l.Address == "" {
		return
	}
	res, err := resilience.Call(s.breakers.Get(CategoryGeocode), func() (*geocoding.Result, error) {
		return s.geocoder.Geocode(ctx, l.Address)
	})
	if err != nil {
		s.logger.Warn("geocoding failed; saving without coordinates",
			"address", l.Address,
			"err", err,
			"correlation_id", events.CorrelationID(ctx),
		)
		return
	}
	if res == nil {
		return
	}
	lat, lng := res.Lat, res.Lng
	l.Latitude = &lat
	l.Longitude = &lng
	if res.FormattedAddress != "" {
		l.FormattedAddress = res.FormattedAddress
	}
	if res.PlaceID != "" {
		l.PlaceID = res.PlaceID
	}
}

func (s *Enhanced) publish(ctx context.Context, eventType string, l model.Location) {
	if s.publisher == nil {
		return
	}
	payload := map[string]any{
		"location_id":    l.ID,
		"correlation_id": events.CorrelationID(ctx),
	}
	if eventType != events.LocationDeleted {
		payload["name"] = l.Name
		payload["address"] = l.Address
		payload["status"] = string(l.Status)
		if l.Latitude != nil && l.Longitude != nil {
			payload["latitude"] = *l.Latitude
			payload["longitude"] = *l.Longitude
		}
	}
	e := events.New(ctx, eventType, events.AggregateLocation, l.ID, payload)
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("location event publish failed",
			"event_type", eventType,
			"location_id", l.ID,
			"err", err,
		)
	}
}

// Breakers exposes breaker states for diagnostics.
func (s *Enhanced) Breakers() map[string]resilience.State {
	return s.breakers.States()
}

var _ Base = (*Enhanced)(nil)
