// Package access decides whether an actor may run an operation. Roles map to
// fixed capability sets; operations name the capability they need.
package access

import (
	"github.com/google/uuid"

	"rutinasds/routines-app/internal/domain"
)

// Capability is a single permission.
type Capability string

const (
	ViewCatalog           Capability = "view_catalog"
	SelfService           Capability = "self_service"
	ManageAssignedClients Capability = "manage_assigned_clients"
	EnrollClients         Capability = "enroll_clients"
	ManageAllClients      Capability = "manage_all_clients"
	SyncCatalog           Capability = "sync_catalog"
	ViewAudit             Capability = "view_audit"
	DeactivateUsers       Capability = "deactivate_users"
	AssignTrainers        Capability = "assign_trainers"
	ManageStaff           Capability = "manage_staff"
)

type capabilitySet map[Capability]struct{}

func setOf(caps ...Capability) capabilitySet {
	s := make(capabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// Each role lists its capabilities in full; nothing is inherited.
var roleCapabilities = map[domain.Role]capabilitySet{
	domain.RoleClient: setOf(ViewCatalog, SelfService),
	domain.RoleTrainer: setOf(ViewCatalog, SelfService,
		ManageAssignedClients, EnrollClients),
	domain.RoleCoordinator: setOf(ViewCatalog, SelfService,
		ManageAssignedClients, EnrollClients,
		ManageAllClients, SyncCatalog, ViewAudit, DeactivateUsers, AssignTrainers),
	domain.RoleAdmin: setOf(ViewCatalog, SelfService,
		ManageAssignedClients, EnrollClients,
		ManageAllClients, SyncCatalog, ViewAudit, DeactivateUsers, AssignTrainers,
		ManageStaff),
}

// Has reports whether role carries capability c. Unknown roles carry nothing.
func Has(role domain.Role, c Capability) bool {
	_, ok := roleCapabilities[role][c]
	return ok
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   uuid.UUID
	Role domain.Role
}

func (a Actor) Can(c Capability) bool {
	return Has(a.Role, c)
}

// Operation identifies a guarded operation.
type Operation string

const (
	OpSyncCatalog       Operation = "catalog.sync"
	OpViewCatalog       Operation = "catalog.view"
	OpViewRoutineHist   Operation = "catalog.versions"
	OpEditCatalog       Operation = "catalog.edit"
	OpAssignRoutine     Operation = "plan.assign"
	OpActivatePlan      Operation = "plan.activate"
	OpEditSnapshotItem  Operation = "snapshot.edit_item"
	OpViewPlan          Operation = "plan.view"
	OpMarkExecuted      Operation = "execution.mark"
	OpViewExecutions    Operation = "execution.view"
	OpUpsertMeasurement Operation = "measurement.upsert"
	OpViewMeasurements  Operation = "measurement.view"
	OpCreateClient      Operation = "user.create_client"
	OpCreateStaff       Operation = "user.create_staff"
	OpDeactivateUser    Operation = "user.deactivate"
	OpAssignTrainer     Operation = "user.assign_trainer"
	OpViewClient        Operation = "user.view_client"
	OpListClients       Operation = "user.list_clients"
	OpViewAudit         Operation = "audit.view"
)

type rule struct {
	capability Capability
	self       bool // the client themself may run it on their own data
}

var rules = map[Operation]rule{
	OpSyncCatalog:       {capability: SyncCatalog},
	OpViewCatalog:       {capability: ViewCatalog},
	OpViewRoutineHist:   {capability: ManageAssignedClients},
	OpEditCatalog:       {capability: SyncCatalog},
	OpAssignRoutine:     {capability: ManageAssignedClients},
	OpActivatePlan:      {capability: ManageAssignedClients},
	OpEditSnapshotItem:  {capability: ManageAssignedClients},
	OpViewPlan:          {capability: ManageAssignedClients, self: true},
	OpMarkExecuted:      {capability: ManageAssignedClients, self: true},
	OpViewExecutions:    {capability: ManageAssignedClients, self: true},
	OpUpsertMeasurement: {capability: ManageAssignedClients, self: true},
	OpViewMeasurements:  {capability: ManageAssignedClients, self: true},
	OpCreateClient:      {capability: EnrollClients},
	OpCreateStaff:       {capability: ManageStaff},
	OpDeactivateUser:    {capability: DeactivateUsers},
	OpAssignTrainer:     {capability: AssignTrainers},
	OpViewClient:        {capability: ManageAssignedClients, self: true},
	OpListClients:       {capability: ManageAssignedClients},
	OpViewAudit:         {capability: ViewAudit},
}

// Authorize checks an operation that is not scoped to a single client.
func Authorize(actor Actor, op Operation) error {
	r, ok := rules[op]
	if !ok || !actor.Can(r.capability) {
		return forbidden(actor, op)
	}
	return nil
}

// AuthorizeClient checks an operation on client's data. The client themself
// passes when the operation allows self service; staff pass when they manage
// all clients, or when they manage their assigned clients and client is one.
func AuthorizeClient(actor Actor, op Operation, client *domain.User) error {
	r, ok := rules[op]
	if !ok || client == nil {
		return forbidden(actor, op)
	}
	switch {
	case actor.ID == client.ID && r.self && actor.Can(SelfService):
		return nil
	case actor.Can(ManageAllClients) && actor.Can(r.capability):
		return nil
	case actor.Can(ManageAssignedClients) && actor.Can(r.capability) && client.IsAssignedTo(actor.ID):
		return nil
	}
	return forbidden(actor, op)
}

func forbidden(actor Actor, op Operation) error {
	return domain.Forbidden(string(op), "role %s may not perform this operation", actor.Role)
}
