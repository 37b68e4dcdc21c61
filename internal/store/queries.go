package store

import (
	"sort"
	"time"

	"pet-health-sync/internal/domain/records"
	"pet-health-sync/internal/domain/schema"
)

// ChildrenOf devuelve los records de childType que apuntan al padre por alguna FK.
func (s *Store) ChildrenOf(parent records.Key, childType schema.EntityType) []records.Record {
	e, ok := s.reg.Entity(childType)
	if !ok {
		return []records.Record{}
	}
	for _, f := range e.ForeignKeys() {
		if f.Target == parent.Type {
			return s.GetByForeignKey(childType, f.Name, parent.ID)
		}
	}
	return []records.Record{}
}

func (s *Store) EmergencyContacts() []records.Record {
	return s.filter(schema.EntityContact, func(r records.Record) bool { return r.Bool("isEmergency") })
}

func (s *Store) RegularContacts() []records.Record {
	return s.filter(schema.EntityContact, func(r records.Record) bool { return !r.Bool("isEmergency") })
}

// AppointmentsByStatus filtra por estado; canineID vacío = todos los canines.
func (s *Store) AppointmentsByStatus(canineID string, status schema.AppointmentStatus) []records.Record {
	return s.filter(schema.EntityAppointment, func(r records.Record) bool {
		if canineID != "" && r.String("canineId") != canineID {
			return false
		}
		return r.String("status") == string(status)
	})
}

// UpcomingAppointments: Scheduled con dateTime >= now, ordenados por fecha ascendente.
func (s *Store) UpcomingAppointments(canineID string, now time.Time) []records.Record {
	out := make([]records.Record, 0)
	for _, r := range s.AppointmentsByStatus(canineID, schema.AppointmentScheduled) {
		at, err := time.Parse(time.RFC3339Nano, r.String("dateTime"))
		if err != nil || at.Before(now) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := time.Parse(time.RFC3339Nano, out[i].String("dateTime"))
		b, _ := time.Parse(time.RFC3339Nano, out[j].String("dateTime"))
		return a.Before(b)
	})
	return out
}

func (s *Store) filter(t schema.EntityType, keep func(records.Record) bool) []records.Record {
	out := make([]records.Record, 0)
	for _, r := range s.GetAll(t) {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
