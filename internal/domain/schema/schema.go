package schema

// EntityType identifica uno de los tipos de registro sincronizados.
type EntityType string

const (
	EntityUserProfile        EntityType = "UserProfile"
	EntityCanineProfile      EntityType = "CanineProfile"
	EntityVetProfile         EntityType = "VetProfile"
	EntityContact            EntityType = "Contact"
	EntityNutritionEntry     EntityType = "NutritionEntry"
	EntityTrainingLog        EntityType = "TrainingLog"
	EntityMedicalRecord      EntityType = "MedicalRecord"
	EntityMedicationEntry    EntityType = "MedicationEntry"
	EntityVetVisit           EntityType = "VetVisit"
	EntityImmunizationRecord EntityType = "ImmunizationRecord"
	EntityCanineAllergy      EntityType = "CanineAllergy"
	EntityMediaItem          EntityType = "MediaItem"
	EntityAppointment        EntityType = "Appointment"
)

// Kind es el tipo semántico de un campo.
type Kind string

const (
	KindString   Kind = "string"
	KindNumber   Kind = "number"
	KindBool     Kind = "boolean"
	KindEnum     Kind = "enum"
	KindDate     Kind = "date"     // YYYY-MM-DD
	KindDateTime Kind = "datetime" // RFC3339 UTC
	KindURI      Kind = "uri"
	KindRef      Kind = "ref" // foreign key (id de otra entidad)
)

// OnDelete define qué pasa con el hijo cuando se borra el padre referenciado.
type OnDelete string

const (
	Cascade OnDelete = "cascade"
	SetNull OnDelete = "set_null"
)

// Columnas comunes a todas las entidades.
const (
	ColumnID        = "id"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
)

type Field struct {
	Name     string // camelCase (dominio)
	Column   string // snake_case (remoto)
	Kind     Kind
	Required bool

	Enum []string // solo KindEnum

	// Solo KindRef.
	Target   EntityType
	OnDelete OnDelete

	// Solo KindURI: campo hermano con el path en storage (si la URL es firmada).
	StoragePathField string
}

func (f Field) IsRef() bool { return f.Kind == KindRef }

// Entity describe un tipo: su tabla remota, campos y cómo se scopea al cargar.
type Entity struct {
	Type   EntityType
	Table  string
	Fields []Field

	// ScopeField es el campo por el que se filtra para viewers no-admin:
	// "" = global, "id" = el propio usuario, o un campo ref (userId/canineId).
	ScopeField string
}

func (e *Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (e *Entity) FieldByColumn(column string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Column == column {
			return f, true
		}
	}
	return Field{}, false
}

func (e *Entity) ForeignKeys() []Field {
	out := make([]Field, 0)
	for _, f := range e.Fields {
		if f.IsRef() {
			out = append(out, f)
		}
	}
	return out
}

// Global indica entidades compartidas entre usuarios (directorio).
func (e *Entity) Global() bool { return e.ScopeField == "" }
