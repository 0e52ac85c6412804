package controllers

import (
	"schoolledger_go/database"
	"schoolledger_go/middleware"
	"schoolledger_go/models"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

type StudentController struct{}

// GetStudents returns the school's students with pagination
func (sc *StudentController) GetStudents(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return err
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	offset := (page - 1) * limit

	var students []models.Student
	var total int64

	query := database.DB.Model(&models.Student{}).Where("school_id = ?", claims.SchoolID)

	// Filter by class if specified
	if classID := c.Query("class_id"); classID != "" {
		query = query.Where("class_id = ?", classID)
	}

	// Filter by enrollment status if specified
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	if admissionNo := c.Query("admission_no"); admissionNo != "" {
		query = query.Where("admission_no = ?", admissionNo)
	}

	query.Count(&total)

	if err := query.Preload("User").Preload("Class").
		Offset(offset).Limit(limit).Find(&students).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch students",
		})
	}

	return c.JSON(fiber.Map{
		"students": students,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetStudent returns a specific student by ID
func (sc *StudentController) GetStudent(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return err
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid student ID",
		})
	}

	var student models.Student
	if err := database.DB.Preload("User").Preload("Class").
		Where("id = ? AND school_id = ?", uint(id), claims.SchoolID).
		First(&student).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Student not found",
		})
	}

	return c.JSON(fiber.Map{
		"student": student,
	})
}

// CreateStudent creates a new student profile
func (sc *StudentController) CreateStudent(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return err
	}

	var student models.Student
	if err := c.BodyParser(&student); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	student.SchoolID = claims.SchoolID

	// Validate required fields
	if student.UserID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	// Check if user exists and is a student
	var user models.User
	if err := database.DB.Where("id = ? AND role = ? AND school_id = ?", student.UserID, "student", claims.SchoolID).
		First(&user).Error; err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User not found or not a student",
		})
	}

	// Check if student profile already exists
	var existingStudent models.Student
	if err := database.DB.Where("user_id = ?", student.UserID).
		First(&existingStudent).Error; err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Student profile already exists for this user",
		})
	}

	// Admission numbers are unique per school
	if student.AdmissionNo != "" {
		var dup models.Student
		if err := database.DB.Where("admission_no = ? AND school_id = ?", student.AdmissionNo, claims.SchoolID).
			First(&dup).Error; err == nil {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Admission number already in use",
			})
		}
	}

	if err := database.DB.Create(&student).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create student profile",
		})
	}

	database.DB.Preload("User").Preload("Class").First(&student, student.ID)

	middleware.LogActivity(c, "CREATE", "students", student.ID, student)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Student profile created successfully",
		"student": student,
	})
}

// UpdateStudent updates an existing student profile
func (sc *StudentController) UpdateStudent(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return err
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid student ID",
		})
	}

	var student models.Student
	if err := database.DB.Where("id = ? AND school_id = ?", uint(id), claims.SchoolID).
		First(&student).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Student not found",
		})
	}

	var updateData models.Student
	if err := c.BodyParser(&updateData); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	// Don't allow moving the profile to another user or school
	updateData.UserID = student.UserID
	updateData.SchoolID = student.SchoolID

	if err := database.DB.Model(&student).Updates(updateData).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update student profile",
		})
	}

	database.DB.Preload("User").Preload("Class").First(&student, student.ID)

	middleware.LogActivity(c, "UPDATE", "students", student.ID, updateData)

	return c.JSON(fiber.Map{
		"message": "Student profile updated successfully",
		"student": student,
	})
}

// DeleteStudent deletes a student profile
func (sc *StudentController) DeleteStudent(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return err
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid student ID",
		})
	}

	var student models.Student
	if err := database.DB.Where("id = ? AND school_id = ?", uint(id), claims.SchoolID).
		First(&student).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Student not found",
		})
	}

	// Block deletion when the student carries open fee collections
	var openCollections int64
	database.DB.Model(&models.FeeCollection{}).
		Where("student_id = ? AND status NOT IN ?", student.ID,
			[]string{models.CollectionPaid, models.CollectionCancelled}).
		Count(&openCollections)
	if openCollections > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Student has open fee collections",
		})
	}

	if err := database.DB.Delete(&student).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete student profile",
		})
	}

	middleware.LogActivity(c, "DELETE", "students", student.ID, student)

	return c.JSON(fiber.Map{
		"message": "Student profile deleted successfully",
	})
}

// GetStudentsByClass returns students for a specific class
func (sc *StudentController) GetStudentsByClass(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return err
	}

	classID, err := strconv.ParseUint(c.Params("class_id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid class ID",
		})
	}

	var students []models.Student
	if err := database.DB.Where("class_id = ? AND school_id = ?", uint(classID), claims.SchoolID).
		Preload("User").Preload("Class").
		Find(&students).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch students",
		})
	}

	return c.JSON(fiber.Map{
		"students": students,
		"total":    len(students),
	})
}
