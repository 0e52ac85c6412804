package utils

import (
	"strings"
	"time"

	"schoolledger_go/models"
)

// Compact representations used across APIs
type UserShort struct {
	ID        uint   `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type SchoolShort struct {
	ID   uint   `json:"id"`
	Name string `json:"name,omitempty"`
}

type Sender struct {
	Type string `json:"type"` // "system" or "user"
	ID   *uint  `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type Recipient struct {
	Type string `json:"type"` // "user", "role", etc.
	ID   uint   `json:"id"`
}

type NotificationDTO struct {
	ID        uint        `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	UserID    uint        `json:"user_id"`
	Title     string      `json:"title"`
	Message   string      `json:"message"`
	Type      string      `json:"type"`
	Data      models.JSON `json:"data,omitempty"`
	Read      bool        `json:"read"`
	ReadAt    *time.Time  `json:"read_at,omitempty"`
	User      UserShort   `json:"user"`
	School    SchoolShort `json:"school"`
	Sender    Sender      `json:"sender"`
	Recipient Recipient   `json:"recipient"`
}

// ToNotificationDTO maps a models.Notification to the compact DTO.
// Assumptions: caller has preloaded User (and User.Student / User.School when possible).
func ToNotificationDTO(n models.Notification) NotificationDTO {
	var us UserShort

	// User name from Student profile if available
	if n.User.Student != nil {
		us = UserShort{
			ID:        n.User.ID,
			FirstName: n.User.Student.FirstName,
			LastName:  n.User.Student.LastName,
		}
	} else {
		// Fallback: use username or email local-part if no profile exists
		name := n.User.Username
		if name == "" && n.User.Email != "" {
			parts := strings.Split(n.User.Email, "@")
			name = parts[0]
		}
		parts := strings.Fields(name)
		fname := ""
		lname := ""
		if len(parts) > 0 {
			fname = parts[0]
		}
		if len(parts) > 1 {
			lname = strings.Join(parts[1:], " ")
		}
		us = UserShort{ID: n.User.ID, FirstName: fname, LastName: lname}
	}

	var ss SchoolShort
	if n.User.School.ID != 0 {
		ss = SchoolShort{ID: n.User.School.ID, Name: n.User.School.Name}
	}

	// Notifications don't track created_by; default to system.
	sender := Sender{Type: "system", Name: "Notification Service"}
	recipient := Recipient{Type: "user", ID: n.UserID}

	return NotificationDTO{
		ID:        n.ID,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		Data:      n.Data,
		Read:      n.Read,
		ReadAt:    n.ReadAt,
		User:      us,
		School:    ss,
		Sender:    sender,
		Recipient: recipient,
	}
}

// ReceiptDTO is the printable projection of a receipt.
type ReceiptDTO struct {
	ID            uint      `json:"id"`
	ReceiptNumber string    `json:"receipt_number"`
	StudentID     uint      `json:"student_id"`
	StudentName   string    `json:"student_name,omitempty"`
	AdmissionNo   string    `json:"admission_no,omitempty"`
	Amount        float64   `json:"amount"`
	PaymentDate   time.Time `json:"payment_date"`
	PaymentMethod string    `json:"payment_method"`
	Status        string    `json:"status"`
	AcademicYear  string    `json:"academic_year"`
}

// ToReceiptDTO maps a models.FeeReceipt to its compact projection.
// Assumptions: caller has preloaded Student when possible.
func ToReceiptDTO(r models.FeeReceipt) ReceiptDTO {
	dto := ReceiptDTO{
		ID:            r.ID,
		ReceiptNumber: r.ReceiptNumber,
		StudentID:     r.StudentID,
		Amount:        r.Amount,
		PaymentDate:   r.PaymentDate,
		PaymentMethod: r.PaymentMethod,
		Status:        r.Status,
		AcademicYear:  r.AcademicYear,
	}
	if r.Student.ID != 0 {
		dto.StudentName = strings.TrimSpace(r.Student.FirstName + " " + r.Student.LastName)
		dto.AdmissionNo = r.Student.AdmissionNo
	}
	return dto
}
