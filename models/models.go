package models

import (
	"database/sql/driver"
	"time"

	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSON field type for GORM
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if j.IsNull() {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	s, ok := value.([]byte)
	if !ok {
		return nil
	}
	*j = append((*j)[0:0], s...)
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

func (j JSON) IsNull() bool {
	return len(j) == 0 || string(j) == "null"
}

// School is the tenant boundary. Every ledger record hangs off exactly one school.
type School struct {
	BaseModel
	Name    string `json:"name" gorm:"size:255;not null"`
	Code    string `json:"code" gorm:"size:50;not null;uniqueIndex"`
	Address string `json:"address" gorm:"size:500"`
	Phone   string `json:"phone" gorm:"size:20"`
	Email   string `json:"email" gorm:"size:255"`
	Active  bool   `json:"active" gorm:"default:true"`

	// Relationships
	Users    []User    `json:"users,omitempty" gorm:"foreignKey:SchoolID"`
	Classes  []Class   `json:"classes,omitempty" gorm:"foreignKey:SchoolID"`
	Students []Student `json:"students,omitempty" gorm:"foreignKey:SchoolID"`
}

// User model
type User struct {
	BaseModel
	Username string `json:"username" gorm:"size:100;not null;uniqueIndex"`
	Password string `json:"-" gorm:"size:255;not null"`
	Email    string `json:"email" gorm:"size:255;uniqueIndex"`
	Phone    string `json:"phone" gorm:"size:20"`
	Role     string `json:"role" gorm:"size:50;not null;default:'student';type:enum('owner','admin','teacher','student')"` // owner, admin, teacher, student
	SchoolID uint   `json:"school_id" gorm:"not null"`
	Status   string `json:"status" gorm:"size:50;not null;default:'active';type:enum('active','inactive','suspended')"` // active, inactive, suspended

	// Relationships
	School  School   `json:"school,omitempty" gorm:"foreignKey:SchoolID"`
	Student *Student `json:"student,omitempty" gorm:"foreignKey:UserID"`
}

// Class model (grade/section within a school)
type Class struct {
	BaseModel
	SchoolID     uint   `json:"school_id" gorm:"not null;index"`
	Name         string `json:"name" gorm:"size:100;not null"`
	Section      string `json:"section" gorm:"size:50"`
	AcademicYear string `json:"academic_year" gorm:"size:20"`
	Active       bool   `json:"active" gorm:"default:true"`

	// Relationships
	School School `json:"school,omitempty" gorm:"foreignKey:SchoolID"`
}

// Student model. The ledger only reads identity, school and class from here.
type Student struct {
	BaseModel
	UserID         uint       `json:"user_id" gorm:"uniqueIndex;not null"`
	SchoolID       uint       `json:"school_id" gorm:"not null;index"`
	ClassID        *uint      `json:"class_id" gorm:"index"`
	AdmissionNo    string     `json:"admission_no" gorm:"size:50;index"`
	FirstName      string     `json:"first_name" gorm:"size:100"`
	LastName       string     `json:"last_name" gorm:"size:100"`
	DateOfBirth    *time.Time `json:"date_of_birth"`
	Gender         string     `json:"gender" gorm:"size:20"`
	Address        string     `json:"address" gorm:"size:500"`
	ParentName     string     `json:"parent_name" gorm:"size:200"`
	ParentPhone    string     `json:"parent_phone" gorm:"size:20"`
	GuardianEmail  string     `json:"guardian_email" gorm:"size:255"`
	EnrollmentDate *time.Time `json:"enrollment_date"`
	Status         string     `json:"status" gorm:"size:50;default:'active';type:enum('active','inactive','transferred','graduated')"`

	// Relationships
	User   User   `json:"user,omitempty" gorm:"foreignKey:UserID"`
	School School `json:"school,omitempty" gorm:"foreignKey:SchoolID"`
	Class  *Class `json:"class,omitempty" gorm:"foreignKey:ClassID"`
}

// Log model for activity tracking
type ActivityLog struct {
	BaseModel
	UserID     uint   `json:"user_id"`
	Action     string `json:"action" gorm:"size:100;not null"`
	Resource   string `json:"resource" gorm:"size:100;not null"`
	ResourceID uint   `json:"resource_id"`
	Details    JSON   `json:"details" gorm:"type:json"`
	IPAddress  string `json:"ip_address" gorm:"size:45"`
	UserAgent  string `json:"user_agent" gorm:"size:500"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// Notification model
type Notification struct {
	BaseModel
	UserID  uint       `json:"user_id" gorm:"not null"`
	Title   string     `json:"title" gorm:"size:255;not null"`
	Message string     `json:"message" gorm:"type:text;not null"`
	Type    string     `json:"type" gorm:"size:50;not null;type:enum('info','warning','error','success')"` // info, warning, error, success
	Data    JSON       `json:"data" gorm:"type:json"`
	Read    bool       `json:"read" gorm:"default:false"`
	ReadAt  *time.Time `json:"read_at"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// ReceiptArchive tracks monthly receipt books archived to S3
type ReceiptArchive struct {
	BaseModel
	SchoolID    uint      `json:"school_id" gorm:"not null;index"`
	FileName    string    `json:"file_name" gorm:"size:255;not null"`
	S3Key       string    `json:"s3_key" gorm:"size:500;not null"`
	PeriodStart time.Time `json:"period_start" gorm:"not null"`
	PeriodEnd   time.Time `json:"period_end" gorm:"not null"`
	RecordCount int       `json:"record_count" gorm:"not null"`
	FileSize    int64     `json:"file_size" gorm:"not null"`
	Status      string    `json:"status" gorm:"size:50;not null;default:'pending';type:enum('pending','completed','failed')"` // pending, completed, failed
	Error       string    `json:"error" gorm:"type:text"`
}
