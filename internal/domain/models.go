// internal/domain/models.go
package domain

import "time"

// Roles a user may hold.
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

// User defines the structure for user data in the DB
type User struct {
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	FullName     string    `db:"full_name" json:"full_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Record is implemented by every catalog entity stored in its own table.
type Record interface {
	Table() string
	// Columns lists the writable columns, excluding id and created_at.
	Columns() []string
	GetID() int64
}

// Owned records belong to a single user and are only visible to that user
// (and to admins).
type Owned interface {
	Record
	OwnerID() int64
	SetOwner(userID int64)
}

// Defaulter fills unset optional fields before a record is written.
type Defaulter interface {
	ApplyDefaults()
}

// Hospital is a care facility.
type Hospital struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name" binding:"required"`
	Address   string    `db:"address" json:"address"`
	City      string    `db:"city" json:"city"`
	Phone     string    `db:"phone" json:"phone"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (Hospital) Table() string { return "hospitals" }
func (Hospital) Columns() []string { return []string{"name", "address", "city", "phone"} }
func (h Hospital) GetID() int64 { return h.ID }

// Doctor is a practitioner, optionally attached to a hospital.
type Doctor struct {
	ID         int64     `db:"id" json:"id"`
	FullName   string    `db:"full_name" json:"full_name" binding:"required"`
	Specialty  string    `db:"specialty" json:"specialty" binding:"required"`
	Email      string    `db:"email" json:"email" binding:"omitempty,email"`
	Phone      string    `db:"phone" json:"phone"`
	HospitalID *int64    `db:"hospital_id" json:"hospital_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

func (Doctor) Table() string { return "doctors" }
func (Doctor) Columns() []string {
	return []string{"full_name", "specialty", "email", "phone", "hospital_id"}
}
func (d Doctor) GetID() int64 { return d.ID }

// Insurance is a coverage plan offered by a provider.
type Insurance struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name" binding:"required"`
	Provider  string    `db:"provider" json:"provider" binding:"required"`
	Coverage  string    `db:"coverage" json:"coverage"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (Insurance) Table() string { return "insurances" }
func (Insurance) Columns() []string { return []string{"name", "provider", "coverage"} }
func (i Insurance) GetID() int64 { return i.ID }

// Medication is a catalog drug entry.
type Medication struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name" binding:"required"`
	Dosage      string    `db:"dosage" json:"dosage"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

func (Medication) Table() string { return "medications" }
func (Medication) Columns() []string { return []string{"name", "dosage", "description"} }
func (m Medication) GetID() int64 { return m.ID }

// Subscription is a user's membership plan.
type Subscription struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Plan      string    `db:"plan" json:"plan" binding:"required"`
	Status    string    `db:"status" json:"status" binding:"omitempty,oneof=active paused cancelled"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (Subscription) Table() string { return "subscriptions" }
func (Subscription) Columns() []string { return []string{"user_id", "plan", "status"} }
func (s Subscription) GetID() int64 { return s.ID }
func (s Subscription) OwnerID() int64 { return s.UserID }
func (s *Subscription) SetOwner(id int64) { s.UserID = id }

func (s *Subscription) ApplyDefaults() {
	if s.Status == "" {
		s.Status = "active"
	}
}

// Examination is a diagnostic test performed on a user.
type Examination struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	DoctorID  *int64    `db:"doctor_id" json:"doctor_id"`
	Kind      string    `db:"kind" json:"kind" binding:"required"`
	Result    string    `db:"result" json:"result"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (Examination) Table() string { return "examinations" }
func (Examination) Columns() []string { return []string{"user_id", "doctor_id", "kind", "result"} }
func (e Examination) GetID() int64 { return e.ID }
func (e Examination) OwnerID() int64 { return e.UserID }
func (e *Examination) SetOwner(id int64) { e.UserID = id }

// Appointment is a scheduled visit between a user and a doctor.
type Appointment struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	DoctorID    int64     `db:"doctor_id" json:"doctor_id" binding:"required"`
	HospitalID  *int64    `db:"hospital_id" json:"hospital_id"`
	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at" binding:"required"`
	Status      string    `db:"status" json:"status" binding:"omitempty,oneof=scheduled completed cancelled"`
	Notes       string    `db:"notes" json:"notes"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

func (Appointment) Table() string { return "appointments" }
func (Appointment) Columns() []string {
	return []string{"user_id", "doctor_id", "hospital_id", "scheduled_at", "status", "notes"}
}
func (a Appointment) GetID() int64 { return a.ID }
func (a Appointment) OwnerID() int64 { return a.UserID }
func (a *Appointment) SetOwner(id int64) { a.UserID = id }

func (a *Appointment) ApplyDefaults() {
	if a.Status == "" {
		a.Status = "scheduled"
	}
}
