package domain

import "time"

// User es la entidad central del servicio de identidad. Los agregados de
// entrenamiento son de solo lectura aqui: los escribe el subsistema de workouts.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Name         string     `json:"name,omitempty"`
	LastName     string     `json:"last_name,omitempty"`
	City         string     `json:"city,omitempty"`
	State        string     `json:"state,omitempty"`
	Bio          string     `json:"bio,omitempty"`
	Birthdate    *time.Time `json:"birthdate,omitempty"`
	Weight       string     `json:"weight,omitempty"`

	WorkoutCount    int     `json:"workout_count"`
	TotalTime       int64   `json:"total_time"`
	TotalWeight     float64 `json:"total_weight"`
	TotalCardioTime int64   `json:"total_cardio_time"`

	// SessionToken solo se llena como resultado de un login exitoso;
	// nunca se persiste.
	SessionToken string `json:"session_token,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ProfilePatch describe una actualizacion parcial de perfil. Un campo nil se
// deja intacto; un campo presente sobrescribe, incluso con valor vacio.
// Email y password nunca pasan por aqui: tienen sus propios flujos.
type ProfilePatch struct {
	Name      *string    `json:"name"`
	LastName  *string    `json:"last_name"`
	City      *string    `json:"city"`
	State     *string    `json:"state"`
	Bio       *string    `json:"bio"`
	Birthdate *time.Time `json:"birthdate"`
	Weight    *string    `json:"weight"`
}

// Apply copia sobre el usuario los campos presentes del patch.
func (p ProfilePatch) Apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.City != nil {
		u.City = *p.City
	}
	if p.State != nil {
		u.State = *p.State
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	if p.Birthdate != nil {
		u.Birthdate = p.Birthdate
	}
	if p.Weight != nil {
		u.Weight = *p.Weight
	}
}
