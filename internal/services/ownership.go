package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/pawsense/pawsense-backend/internal/data/repos"
)

// ownershipScope is the set of pets a user owns and the devices reachable
// through their active bindings. Query services intersect every request
// with one of these; an empty scope yields empty results, never an error.
type ownershipScope struct {
	PetIDs    []uuid.UUID
	DeviceIDs []uuid.UUID

	petSet    map[uuid.UUID]struct{}
	deviceSet map[uuid.UUID]struct{}
}

func (s *ownershipScope) Empty() bool {
	return s == nil || (len(s.PetIDs) == 0 && len(s.DeviceIDs) == 0)
}

func (s *ownershipScope) OwnsPet(petID uuid.UUID) bool {
	if s == nil {
		return false
	}
	_, ok := s.petSet[petID]
	return ok
}

func (s *ownershipScope) OwnsDevice(deviceID uuid.UUID) bool {
	if s == nil {
		return false
	}
	_, ok := s.deviceSet[deviceID]
	return ok
}

// resolveScope walks user -> owned pets -> active bindings -> devices.
func resolveScope(ctx context.Context, pets repos.PetRepo, bindings repos.BindingRepo, userID uuid.UUID) (*ownershipScope, error) {
	scope := &ownershipScope{
		petSet:    map[uuid.UUID]struct{}{},
		deviceSet: map[uuid.UUID]struct{}{},
	}

	owned, err := pets.ListByOwner(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	for _, pet := range owned {
		scope.PetIDs = append(scope.PetIDs, pet.ID)
		scope.petSet[pet.ID] = struct{}{}
	}
	if len(scope.PetIDs) == 0 {
		return scope, nil
	}

	bound, err := bindings.ListActiveByPetIDs(ctx, nil, scope.PetIDs)
	if err != nil {
		return nil, err
	}
	for _, binding := range bound {
		if _, ok := scope.deviceSet[binding.DeviceID]; ok {
			continue
		}
		scope.DeviceIDs = append(scope.DeviceIDs, binding.DeviceID)
		scope.deviceSet[binding.DeviceID] = struct{}{}
	}
	return scope, nil
}
