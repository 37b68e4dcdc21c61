package schema

import (
	"strings"
	"unicode"
)

// Role del usuario.
// @Enum Admin, PetOwner, Vet, DogWalker
type Role string

const (
	RoleAdmin     Role = "Admin"
	RolePetOwner  Role = "PetOwner"
	RoleVet       Role = "Vet"
	RoleDogWalker Role = "DogWalker"
)

// ParseRole acepta los roles sin importar mayúsculas. Vacío = PetOwner.
func ParseRole(s string) (Role, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RolePetOwner, true
	}
	for _, r := range roles {
		if strings.EqualFold(r, s) {
			return Role(r), true
		}
	}
	return "", false
}

// AppointmentStatus no tiene restricciones de transición: cualquier estado se puede setear desde cualquiera.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "Scheduled"
	AppointmentCompleted AppointmentStatus = "Completed"
	AppointmentCancelled AppointmentStatus = "Cancelled"
)

type MediaType string

const (
	MediaPhoto MediaType = "photo"
	MediaVideo MediaType = "video"
)

type AllergySeverity string

const (
	SeverityMild     AllergySeverity = "Mild"
	SeverityModerate AllergySeverity = "Moderate"
	SeveritySevere   AllergySeverity = "Severe"
)

var (
	roles        = []string{string(RoleAdmin), string(RolePetOwner), string(RoleVet), string(RoleDogWalker)}
	statuses     = []string{string(AppointmentScheduled), string(AppointmentCompleted), string(AppointmentCancelled)}
	mediaTypes   = []string{string(MediaPhoto), string(MediaVideo)}
	severities   = []string{string(SeverityMild), string(SeverityModerate), string(SeveritySevere)}
	sexes        = []string{"Male", "Female", "Unknown"}
	mealTypes    = []string{"Breakfast", "Lunch", "Dinner", "Snack"}
	progressions = []string{"NeedsWork", "Improving", "Mastered"}
)

// definitions es la fuente única de verdad del modelo.
// Para agregar una entidad basta con sumar una entrada acá.
var definitions = []Entity{
	{
		Type:       EntityUserProfile,
		Table:      "user_profiles",
		ScopeField: ColumnID,
		Fields: []Field{
			text("email").req(),
			text("displayName").req(),
			enum("role", roles).req(),
			text("phone"),
			text("avatarUrl"),
		},
	},
	{
		Type:       EntityCanineProfile,
		Table:      "canine_profiles",
		ScopeField: "userId",
		Fields: []Field{
			ref("userId", EntityUserProfile, Cascade).req(),
			text("name").req(),
			text("breed"),
			date("dateOfBirth"),
			number("weight"),
			enum("sex", sexes),
			text("microchipId"),
			ref("profilePhotoId", EntityMediaItem, SetNull),
			text("notes"),
		},
	},
	{
		Type:  EntityVetProfile,
		Table: "vet_profiles",
		Fields: []Field{
			text("name").req(),
			text("clinicName"),
			text("phone"),
			text("email"),
			text("address"),
			text("specialty"),
		},
	},
	{
		Type:  EntityContact,
		Table: "contacts",
		Fields: []Field{
			text("name").req(),
			text("phone").req(),
			text("email"),
			text("relationship"),
			boolean("isEmergency").req(),
			text("notes"),
		},
	},
	{
		Type:       EntityNutritionEntry,
		Table:      "nutrition_entries",
		ScopeField: "canineId",
		Fields: []Field{
			canineRef(),
			text("foodName").req(),
			date("date").req(),
			enum("mealType", mealTypes),
			number("amount"),
			text("unit"),
			number("calories"),
			text("notes"),
		},
	},
	{
		Type:       EntityTrainingLog,
		Table:      "training_logs",
		ScopeField: "canineId",
		Fields: []Field{
			canineRef(),
			date("date").req(),
			text("activity").req(),
			number("durationMinutes"),
			enum("progress", progressions),
			text("notes"),
		},
	},
	{
		Type:       EntityMedicalRecord,
		Table:      "medical_records",
		ScopeField: "canineId",
		Fields: []Field{
			canineRef(),
			date("date").req(),
			text("title").req(),
			text("description"),
			vetRef(),
			uri("attachmentUri", "attachmentPath"),
			text("attachmentPath"),
		},
	},
	{
		Type:       EntityMedicationEntry,
		Table:      "medication_entries",
		ScopeField: "canineId",
		Fields: []Field{
			canineRef(),
			text("name").req(),
			text("dosage"),
			text("frequency"),
			date("startDate").req(),
			date("endDate"),
			vetRef(),
			text("notes"),
		},
	},
	{
		Type:       EntityVetVisit,
		Table:      "vet_visits",
		ScopeField: "canineId",
		Fields: []Field{
			canineRef(),
			vetRef(),
			date("visitDate").req(),
			text("reason").req(),
			text("diagnosis"),
			text("treatment"),
			number("cost"),
			text("notes"),
		},
	},
	{
		Type:       EntityImmunizationRecord,
		Table:      "immunization_records",
		ScopeField: "canineId",
		Fields: []Field{
			canineRef(),
			text("vaccineName").req(),
			date("dateAdministered").req(),
			date("nextDueDate"),
			vetRef(),
			text("lotNumber"),
		},
	},
	{
		Type:       EntityCanineAllergy,
		Table:      "canine_allergies",
		ScopeField: "canineId",
		Fields: []Field{
			canineRef(),
			text("allergen").req(),
			enum("severity", severities).req(),
			text("reaction"),
			text("notes"),
		},
	},
	{
		Type:       EntityMediaItem,
		Table:      "media_items",
		ScopeField: "canineId",
		Fields: []Field{
			canineRef(),
			enum("type", mediaTypes).req(),
			uri("uri", "storagePath").req(),
			text("storagePath"),
			text("caption"),
			datetime("takenAt"),
		},
	},
	{
		Type:       EntityAppointment,
		Table:      "appointments",
		ScopeField: "canineId",
		Fields: []Field{
			canineRef(),
			vetRef(),
			datetime("dateTime").req(),
			enum("status", statuses).req(),
			text("reason"),
			text("location"),
			text("notes"),
		},
	},
}

func text(name string) Field     { return Field{Name: name, Column: SnakeCase(name), Kind: KindString} }
func number(name string) Field   { return Field{Name: name, Column: SnakeCase(name), Kind: KindNumber} }
func boolean(name string) Field  { return Field{Name: name, Column: SnakeCase(name), Kind: KindBool} }
func date(name string) Field     { return Field{Name: name, Column: SnakeCase(name), Kind: KindDate} }
func datetime(name string) Field { return Field{Name: name, Column: SnakeCase(name), Kind: KindDateTime} }

func enum(name string, values []string) Field {
	return Field{Name: name, Column: SnakeCase(name), Kind: KindEnum, Enum: values}
}

func uri(name, storagePathField string) Field {
	return Field{Name: name, Column: SnakeCase(name), Kind: KindURI, StoragePathField: storagePathField}
}

func ref(name string, target EntityType, onDelete OnDelete) Field {
	return Field{Name: name, Column: SnakeCase(name), Kind: KindRef, Target: target, OnDelete: onDelete}
}

func canineRef() Field { return ref("canineId", EntityCanineProfile, Cascade).req() }
func vetRef() Field    { return ref("vetId", EntityVetProfile, SetNull) }

func (f Field) req() Field {
	f.Required = true
	return f
}

// SnakeCase convierte "profilePhotoId" -> "profile_photo_id".
func SnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CamelCase es la inversa de SnakeCase: "profile_photo_id" -> "profilePhotoId".
func CamelCase(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
