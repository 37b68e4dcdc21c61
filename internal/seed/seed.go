// Package seed provee un dataset estático y consistente para desarrollo y demo sin backend.
package seed

import (
	"time"

	"github.com/google/uuid"

	"pet-health-sync/internal/domain/records"
	"pet-health-sync/internal/domain/schema"
)

// namespace fijo: los ids del seed son estables entre ejecuciones.
var namespace = uuid.MustParse("6f1c2b0e-5d8a-4c1e-9a57-2f64b8c9d103")

// ID devuelve el id estable de un record del seed a partir de su alias ("canine:rex").
func ID(alias string) string {
	return uuid.NewSHA1(namespace, []byte(alias)).String()
}

// Epoch es la fecha de creación de todo el dataset.
var Epoch = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

type builder struct {
	out map[schema.EntityType][]records.Record
	n   int
}

func (b *builder) add(t schema.EntityType, alias string, fields records.Fields) {
	// createdAt escalonado para que el orden sea visible y estable
	at := Epoch.Add(time.Duration(b.n) * time.Minute)
	b.n++
	b.out[t] = append(b.out[t], records.Record{
		Type:      t,
		ID:        ID(alias),
		CreatedAt: at,
		UpdatedAt: at,
		Fields:    fields,
	})
}

// Dataset arma una copia nueva del seed; cada llamada devuelve records independientes.
// Todas las FKs resuelven y cada tipo tiene al menos un record.
func Dataset() map[schema.EntityType][]records.Record {
	b := &builder{out: make(map[schema.EntityType][]records.Record)}

	b.add(schema.EntityUserProfile, "user:admin", records.Fields{
		"email":       "admin@pethealth.dev",
		"displayName": "Clinic Admin",
		"role":        string(schema.RoleAdmin),
	})
	b.add(schema.EntityUserProfile, "user:ana", records.Fields{
		"email":       "ana@pethealth.dev",
		"displayName": "Ana Pérez",
		"role":        string(schema.RolePetOwner),
		"phone":       "+54 11 5555-0101",
	})
	b.add(schema.EntityUserProfile, "user:leo", records.Fields{
		"email":       "leo@pethealth.dev",
		"displayName": "Leo Gómez",
		"role":        string(schema.RoleDogWalker),
	})

	b.add(schema.EntityVetProfile, "vet:ruiz", records.Fields{
		"name":       "Dra. Marta Ruiz",
		"clinicName": "Clínica Patitas",
		"phone":      "+54 11 5555-0200",
		"email":      "mruiz@patitas.dev",
		"address":    "Av. Siempre Viva 742",
		"specialty":  "General practice",
	})
	b.add(schema.EntityVetProfile, "vet:kim", records.Fields{
		"name":      "Dr. Joon Kim",
		"specialty": "Dermatology",
	})

	b.add(schema.EntityContact, "contact:er", records.Fields{
		"name":         "24h Animal ER",
		"phone":        "+54 11 5555-0911",
		"relationship": "Emergency clinic",
		"isEmergency":  true,
	})
	b.add(schema.EntityContact, "contact:sitter", records.Fields{
		"name":         "Sofía (sitter)",
		"phone":        "+54 11 5555-0303",
		"email":        "sofia@pethealth.dev",
		"relationship": "Pet sitter",
		"isEmergency":  false,
	})

	b.add(schema.EntityCanineProfile, "canine:rex", records.Fields{
		"userId":      ID("user:ana"),
		"name":        "Rex",
		"breed":       "Border Collie",
		"dateOfBirth": "2019-05-04",
		"weight":      float64(18.5),
		"sex":         "Male",
		"microchipId": "985112003456789",
	})
	b.add(schema.EntityCanineProfile, "canine:luna", records.Fields{
		"userId":      ID("user:ana"),
		"name":        "Luna",
		"breed":       "Beagle",
		"dateOfBirth": "2021-11-20",
		"weight":      float64(11),
		"sex":         "Female",
	})
	b.add(schema.EntityCanineProfile, "canine:toby", records.Fields{
		"userId": ID("user:leo"),
		"name":   "Toby",
		"breed":  "Mixed",
		"sex":    "Unknown",
	})

	b.add(schema.EntityMediaItem, "media:rex-1", records.Fields{
		"canineId":    ID("canine:rex"),
		"type":        string(schema.MediaPhoto),
		"uri":         "https://images.pethealth.dev/seed/rex-1.jpg",
		"storagePath": "seed/rex-1.jpg",
		"caption":     "Rex at the park",
		"takenAt":     "2024-01-10T15:30:00Z",
	})
	b.add(schema.EntityMediaItem, "media:luna-1", records.Fields{
		"canineId": ID("canine:luna"),
		"type":     string(schema.MediaVideo),
		"uri":      "https://images.pethealth.dev/seed/luna-1.mp4",
		"caption":  "First swim",
	})
	// foto de perfil: el ciclo canine <-> media se cierra después de crear el media
	b.out[schema.EntityCanineProfile][0].Fields["profilePhotoId"] = ID("media:rex-1")

	b.add(schema.EntityNutritionEntry, "nutrition:rex-1", records.Fields{
		"canineId": ID("canine:rex"),
		"foodName": "Salmon kibble",
		"date":     "2024-01-14",
		"mealType": "Breakfast",
		"amount":   float64(250),
		"unit":     "g",
		"calories": float64(910),
	})
	b.add(schema.EntityNutritionEntry, "nutrition:luna-1", records.Fields{
		"canineId": ID("canine:luna"),
		"foodName": "Chicken & rice",
		"date":     "2024-01-14",
		"mealType": "Dinner",
	})

	b.add(schema.EntityTrainingLog, "training:rex-1", records.Fields{
		"canineId":        ID("canine:rex"),
		"date":            "2024-01-12",
		"activity":        "Recall",
		"durationMinutes": float64(20),
		"progress":        "Improving",
	})
	b.add(schema.EntityTrainingLog, "training:toby-1", records.Fields{
		"canineId": ID("canine:toby"),
		"date":     "2024-01-13",
		"activity": "Leash walking",
		"progress": "NeedsWork",
	})

	b.add(schema.EntityMedicalRecord, "medical:rex-1", records.Fields{
		"canineId":       ID("canine:rex"),
		"date":           "2023-12-01",
		"title":          "Annual checkup",
		"description":    "Healthy, mild tartar.",
		"vetId":          ID("vet:ruiz"),
		"attachmentUri":  "https://images.pethealth.dev/seed/rex-checkup.pdf",
		"attachmentPath": "seed/rex-checkup.pdf",
	})

	b.add(schema.EntityMedicationEntry, "medication:luna-1", records.Fields{
		"canineId":  ID("canine:luna"),
		"name":      "Apoquel",
		"dosage":    "5.4 mg",
		"frequency": "Once daily",
		"startDate": "2024-01-05",
		"endDate":   "2024-02-05",
		"vetId":     ID("vet:kim"),
	})

	b.add(schema.EntityVetVisit, "visit:luna-1", records.Fields{
		"canineId":  ID("canine:luna"),
		"vetId":     ID("vet:kim"),
		"visitDate": "2024-01-05",
		"reason":    "Itchy skin",
		"diagnosis": "Atopic dermatitis",
		"treatment": "Apoquel, omega-3",
		"cost":      float64(85),
	})

	b.add(schema.EntityImmunizationRecord, "vaccine:rex-rabies", records.Fields{
		"canineId":         ID("canine:rex"),
		"vaccineName":      "Rabies",
		"dateAdministered": "2023-12-01",
		"nextDueDate":      "2024-12-01",
		"vetId":            ID("vet:ruiz"),
		"lotNumber":        "RB-2231",
	})
	b.add(schema.EntityImmunizationRecord, "vaccine:toby-dhpp", records.Fields{
		"canineId":         ID("canine:toby"),
		"vaccineName":      "DHPP",
		"dateAdministered": "2023-10-10",
	})

	b.add(schema.EntityCanineAllergy, "allergy:luna-chicken", records.Fields{
		"canineId": ID("canine:luna"),
		"allergen": "Chicken protein",
		"severity": string(schema.SeverityModerate),
		"reaction": "Itching, ear inflammation",
	})

	b.add(schema.EntityAppointment, "appointment:rex-1", records.Fields{
		"canineId": ID("canine:rex"),
		"vetId":    ID("vet:ruiz"),
		"dateTime": "2030-06-01T14:00:00Z",
		"status":   string(schema.AppointmentScheduled),
		"reason":   "Dental cleaning",
		"location": "Clínica Patitas",
	})
	b.add(schema.EntityAppointment, "appointment:luna-1", records.Fields{
		"canineId": ID("canine:luna"),
		"vetId":    ID("vet:kim"),
		"dateTime": "2024-01-05T10:00:00Z",
		"status":   string(schema.AppointmentCompleted),
		"reason":   "Skin consult",
	})
	b.add(schema.EntityAppointment, "appointment:toby-1", records.Fields{
		"canineId": ID("canine:toby"),
		"dateTime": "2030-07-15T09:30:00Z",
		"status":   string(schema.AppointmentCancelled),
	})

	return b.out
}

// Problem describe una FK del dataset que no resuelve.
type Problem struct {
	Entity schema.EntityType
	ID     string
	Field  string
	Ref    string
}

// Check verifica que todas las FKs del dataset resuelvan y que no falten requeridos.
func Check(reg *schema.Registry, data map[schema.EntityType][]records.Record) []Problem {
	ids := make(map[records.Key]bool)
	for t, recs := range data {
		for _, r := range recs {
			ids[records.Key{Type: t, ID: r.ID}] = true
		}
	}

	problems := make([]Problem, 0)
	for _, t := range reg.Types() {
		e := reg.MustEntity(t)
		for _, r := range data[t] {
			for _, f := range e.Fields {
				v, ok := r.Fields[f.Name]
				if !ok {
					if f.Required {
						problems = append(problems, Problem{Entity: t, ID: r.ID, Field: f.Name})
					}
					continue
				}
				if !f.IsRef() {
					continue
				}
				ref, _ := v.(string)
				if !ids[records.Key{Type: f.Target, ID: ref}] {
					problems = append(problems, Problem{Entity: t, ID: r.ID, Field: f.Name, Ref: ref})
				}
			}
		}
	}
	return problems
}
