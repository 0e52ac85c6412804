package ledger

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"schoolledger_go/models"
)

// CreateStructureInput carries everything needed to define a billing template.
// Either Amount (with Category) or Components must be provided, not both.
type CreateStructureInput struct {
	Name         string
	ClassID      *uint
	AcademicYear string
	Category     string
	Amount       float64
	Components   models.FeeComponentList
	Frequency    string
	DueDay       int
	LateFee      models.AdjustmentPolicy
	Discount     models.AdjustmentPolicy
}

// UpdateStructureInput contains the mutable fields of a structure. Nil pointers
// leave the current value untouched.
type UpdateStructureInput struct {
	Name       *string
	Category   *string
	Amount     *float64
	Components *models.FeeComponentList
	Frequency  *string
	DueDay     *int
	LateFee    *models.AdjustmentPolicy
	Discount   *models.AdjustmentPolicy
	Status     *string
}

// CreateStructure validates and persists a new fee structure for the actor's school.
func (s *Service) CreateStructure(actor Actor, in CreateStructureInput) (*models.FeeStructure, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, Validationf("name is required")
	}
	if strings.TrimSpace(in.AcademicYear) == "" {
		return nil, Validationf("academic_year is required")
	}
	if in.Frequency != "" && !models.IsValidFrequency(in.Frequency) {
		return nil, Validationf("invalid frequency %q", in.Frequency)
	}

	// Pricing: itemized components win over a flat amount; supplying neither is an error.
	var total float64
	switch {
	case len(in.Components) > 0:
		for _, c := range in.Components {
			if strings.TrimSpace(c.Category) == "" {
				return nil, Validationf("every component needs a category")
			}
			if c.Amount <= 0 {
				return nil, Validationf("component %q amount must be positive", c.Category)
			}
		}
		total = in.Components.Total()
	case in.Amount > 0:
		if strings.TrimSpace(in.Category) == "" {
			return nil, Validationf("category is required with a flat amount")
		}
		total = in.Amount
	default:
		return nil, Validationf("either components or a positive amount is required")
	}

	if err := s.checkStructureUnique(actor.SchoolID, name, in.ClassID, in.AcademicYear, 0); err != nil {
		return nil, err
	}

	frequency := in.Frequency
	if frequency == "" {
		frequency = models.FrequencyOneTime
	}
	dueDay := in.DueDay
	if dueDay <= 0 || dueDay > 31 {
		dueDay = 10
	}

	structure := models.FeeStructure{
		SchoolID:     actor.SchoolID,
		Name:         name,
		ClassID:      in.ClassID,
		AcademicYear: in.AcademicYear,
		Category:     in.Category,
		Amount:       in.Amount,
		Components:   in.Components,
		TotalAmount:  total,
		Frequency:    frequency,
		DueDay:       dueDay,
		LateFee:      in.LateFee,
		Discount:     in.Discount,
		Status:       "active",
		CreatedByID:  actor.UserID,
	}
	if len(in.Components) > 0 {
		structure.Amount = 0
	}

	if err := s.db.Create(&structure).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, Conflictf("fee structure %q already exists for this class and academic year", structure.Name)
		}
		return nil, err
	}
	return &structure, nil
}

// UpdateStructure applies partial changes and recomputes TotalAmount when the
// pricing inputs change. Existing collections keep their snapshotted amounts.
func (s *Service) UpdateStructure(actor Actor, id uint, in UpdateStructureInput) (*models.FeeStructure, error) {
	structure, err := s.GetStructure(actor, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, Validationf("name cannot be empty")
		}
		if err := s.checkStructureUnique(actor.SchoolID, name, structure.ClassID, structure.AcademicYear, structure.ID); err != nil {
			return nil, err
		}
		structure.Name = name
	}
	if in.Category != nil {
		structure.Category = *in.Category
	}
	if in.Frequency != nil {
		if !models.IsValidFrequency(*in.Frequency) {
			return nil, Validationf("invalid frequency %q", *in.Frequency)
		}
		structure.Frequency = *in.Frequency
	}
	if in.DueDay != nil {
		if *in.DueDay < 1 || *in.DueDay > 31 {
			return nil, Validationf("due_day must be between 1 and 31")
		}
		structure.DueDay = *in.DueDay
	}
	if in.LateFee != nil {
		structure.LateFee = *in.LateFee
	}
	if in.Discount != nil {
		structure.Discount = *in.Discount
	}
	if in.Status != nil {
		if *in.Status != "active" && *in.Status != "inactive" {
			return nil, Validationf("status must be active or inactive")
		}
		structure.Status = *in.Status
	}

	// Pricing changes recompute the authoritative total.
	if in.Components != nil {
		comps := *in.Components
		if len(comps) > 0 {
			for _, c := range comps {
				if strings.TrimSpace(c.Category) == "" || c.Amount <= 0 {
					return nil, Validationf("components need a category and a positive amount")
				}
			}
			structure.Components = comps
			structure.Amount = 0
			structure.TotalAmount = comps.Total()
		} else {
			structure.Components = nil
		}
	}
	if in.Amount != nil && len(structure.Components) == 0 {
		if *in.Amount <= 0 {
			return nil, Validationf("amount must be positive")
		}
		structure.Amount = *in.Amount
		structure.TotalAmount = *in.Amount
	}

	if err := s.db.Save(structure).Error; err != nil {
		return nil, err
	}
	return structure, nil
}

// DeactivateStructure marks the template inactive without touching collections.
func (s *Service) DeactivateStructure(actor Actor, id uint) (*models.FeeStructure, error) {
	structure, err := s.GetStructure(actor, id)
	if err != nil {
		return nil, err
	}
	if structure.Status == "inactive" {
		return structure, nil
	}
	if err := s.db.Model(structure).Update("status", "inactive").Error; err != nil {
		return nil, err
	}
	structure.Status = "inactive"
	return structure, nil
}

// DeleteStructure removes an unreferenced template. Referenced templates are
// rejected with the referencing collection count; deactivation is the alternative.
func (s *Service) DeleteStructure(actor Actor, id uint) error {
	structure, err := s.GetStructure(actor, id)
	if err != nil {
		return err
	}

	var refs int64
	if err := s.db.Model(&models.FeeCollection{}).
		Where("fee_structure_id = ?", structure.ID).
		Count(&refs).Error; err != nil {
		return err
	}
	if refs > 0 {
		return Conflictf("fee structure is referenced by %d collection(s); deactivate it instead", refs)
	}

	return s.db.Delete(structure).Error
}

// GetStructure fetches a structure within the actor's school.
func (s *Service) GetStructure(actor Actor, id uint) (*models.FeeStructure, error) {
	var structure models.FeeStructure
	err := s.db.Where("id = ? AND school_id = ?", id, actor.SchoolID).First(&structure).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFoundf("fee structure %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &structure, nil
}

// ListStructures returns the school's structures, optionally filtered by
// academic year, class and status.
func (s *Service) ListStructures(actor Actor, academicYear string, classID *uint, status string) ([]models.FeeStructure, error) {
	query := s.db.Where("school_id = ?", actor.SchoolID)
	if academicYear != "" {
		query = query.Where("academic_year = ?", academicYear)
	}
	if classID != nil {
		query = query.Where("class_id = ?", *classID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var structures []models.FeeStructure
	if err := query.Order("name ASC").Find(&structures).Error; err != nil {
		return nil, err
	}
	return structures, nil
}

func (s *Service) checkStructureUnique(schoolID uint, name string, classID *uint, academicYear string, excludeID uint) error {
	query := s.db.Model(&models.FeeStructure{}).
		Where("school_id = ? AND name = ? AND academic_year = ?", schoolID, name, academicYear)
	if classID != nil {
		query = query.Where("class_id = ?", *classID)
	} else {
		query = query.Where("class_id IS NULL")
	}
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return Conflictf("fee structure %q already exists for this class and academic year", name)
	}
	return nil
}
