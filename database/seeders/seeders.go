package seeders

import (
	"log"
	"time"

	"schoolledger_go/database"
	"schoolledger_go/models"
	"schoolledger_go/utils"
)

// SeedAll runs all seeders
func SeedAll() {
	log.Println("Starting database seeding...")

	SeedSchools()
	SeedUsers()
	SeedClasses()
	SeedStudents()
	SeedFeeStructures()

	log.Println("Database seeding completed successfully!")
}

// SeedSchools seeds the schools table
func SeedSchools() {
	var count int64
	database.DB.Model(&models.School{}).Count(&count)
	if count > 0 {
		log.Println("Schools already seeded, skipping...")
		return
	}

	schools := []models.School{
		{
			BaseModel: models.BaseModel{ID: 1, CreatedAt: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)},
			Name:      "Greenwood Public School",
			Code:      "GPS",
			Address:   "12 Lake Road, Greenwood",
			Phone:     "044-123456",
			Email:     "office@greenwood.example.com",
			Active:    true,
		},
		{
			BaseModel: models.BaseModel{ID: 2, CreatedAt: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)},
			Name:      "Riverside Academy",
			Code:      "RSA",
			Address:   "88 River Street, Riverside",
			Phone:     "044-123457",
			Email:     "office@riverside.example.com",
			Active:    true,
		},
	}

	for _, school := range schools {
		if err := database.DB.Create(&school).Error; err != nil {
			log.Printf("Error seeding school %s: %v", school.Code, err)
		}
	}

	log.Println("Schools seeded successfully")
}

// SeedUsers seeds the users table
func SeedUsers() {
	var count int64
	database.DB.Model(&models.User{}).Count(&count)
	if count > 0 {
		log.Println("Users already seeded, skipping...")
		return
	}

	// Hash the default password
	hashedPassword, _ := utils.HashPassword("password123")

	users := []models.User{
		{
			BaseModel: models.BaseModel{ID: 1, CreatedAt: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)},
			Username:  "owner",
			Password:  hashedPassword,
			Email:     "owner@greenwood.example.com",
			Phone:     "0812345678",
			Role:      "owner",
			SchoolID:  1,
			Status:    "active",
		},
		{
			BaseModel: models.BaseModel{ID: 2, CreatedAt: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)},
			Username:  "admin",
			Password:  hashedPassword,
			Email:     "admin@greenwood.example.com",
			Phone:     "0812345679",
			Role:      "admin",
			SchoolID:  1,
			Status:    "active",
		},
		{
			BaseModel: models.BaseModel{ID: 3, CreatedAt: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)},
			Username:  "teacher_mary",
			Password:  hashedPassword,
			Email:     "mary.jones@greenwood.example.com",
			Phone:     "0896789012",
			Role:      "teacher",
			SchoolID:  1,
			Status:    "active",
		},
		{
			BaseModel: models.BaseModel{ID: 4, CreatedAt: time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)},
			Username:  "alice_w",
			Password:  hashedPassword,
			Email:     "alice.wilson@example.com",
			Phone:     "0891234567",
			Role:      "student",
			SchoolID:  1,
			Status:    "active",
		},
		{
			BaseModel: models.BaseModel{ID: 5, CreatedAt: time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)},
			Username:  "ben_t",
			Password:  hashedPassword,
			Email:     "ben.taylor@example.com",
			Phone:     "0891234568",
			Role:      "student",
			SchoolID:  1,
			Status:    "active",
		},
	}

	for _, user := range users {
		if err := database.DB.Create(&user).Error; err != nil {
			log.Printf("Error seeding user %s: %v", user.Username, err)
		}
	}

	log.Println("Users seeded successfully")
}

// SeedClasses seeds the classes table
func SeedClasses() {
	var count int64
	database.DB.Model(&models.Class{}).Count(&count)
	if count > 0 {
		log.Println("Classes already seeded, skipping...")
		return
	}

	classes := []models.Class{
		{
			BaseModel:    models.BaseModel{ID: 1, CreatedAt: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)},
			SchoolID:     1,
			Name:         "Grade 5",
			Section:      "A",
			AcademicYear: "2025-2026",
			Active:       true,
		},
		{
			BaseModel:    models.BaseModel{ID: 2, CreatedAt: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)},
			SchoolID:     1,
			Name:         "Grade 6",
			Section:      "A",
			AcademicYear: "2025-2026",
			Active:       true,
		},
	}

	for _, class := range classes {
		if err := database.DB.Create(&class).Error; err != nil {
			log.Printf("Error seeding class %s: %v", class.Name, err)
		}
	}

	log.Println("Classes seeded successfully")
}

// SeedStudents seeds the students table
func SeedStudents() {
	var count int64
	database.DB.Model(&models.Student{}).Count(&count)
	if count > 0 {
		log.Println("Students already seeded, skipping...")
		return
	}

	classG5 := uint(1)
	classG6 := uint(2)
	enrolled := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	students := []models.Student{
		{
			BaseModel:      models.BaseModel{ID: 1, CreatedAt: time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)},
			UserID:         4,
			SchoolID:       1,
			ClassID:        &classG5,
			AdmissionNo:    "GPS-2025-0001",
			FirstName:      "Alice",
			LastName:       "Wilson",
			ParentName:     "Sarah Wilson",
			ParentPhone:    "0891111111",
			GuardianEmail:  "sarah.wilson@example.com",
			EnrollmentDate: &enrolled,
			Status:         "active",
		},
		{
			BaseModel:      models.BaseModel{ID: 2, CreatedAt: time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)},
			UserID:         5,
			SchoolID:       1,
			ClassID:        &classG6,
			AdmissionNo:    "GPS-2025-0002",
			FirstName:      "Ben",
			LastName:       "Taylor",
			ParentName:     "Mark Taylor",
			ParentPhone:    "0892222222",
			GuardianEmail:  "mark.taylor@example.com",
			EnrollmentDate: &enrolled,
			Status:         "active",
		},
	}

	for _, student := range students {
		if err := database.DB.Create(&student).Error; err != nil {
			log.Printf("Error seeding student %s: %v", student.AdmissionNo, err)
		}
	}

	log.Println("Students seeded successfully")
}

// SeedFeeStructures seeds a few billing templates for the first school
func SeedFeeStructures() {
	var count int64
	database.DB.Model(&models.FeeStructure{}).Count(&count)
	if count > 0 {
		log.Println("Fee structures already seeded, skipping...")
		return
	}

	classG5 := uint(1)

	structures := []models.FeeStructure{
		{
			BaseModel:    models.BaseModel{ID: 1, CreatedAt: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)},
			SchoolID:     1,
			Name:         "Monthly Tuition G5",
			ClassID:      &classG5,
			AcademicYear: "2025-2026",
			Category:     "tuition",
			Components: models.FeeComponentList{
				{Category: "tuition", Amount: 2500},
				{Category: "activities", Amount: 300},
			},
			TotalAmount: 2800,
			Frequency:   models.FrequencyMonthly,
			DueDay:      10,
			LateFee: models.AdjustmentPolicy{
				Enabled:   true,
				Type:      "fixed",
				Value:     100,
				GraceDays: 5,
			},
			Status:      "active",
			CreatedByID: 2,
		},
		{
			BaseModel:    models.BaseModel{ID: 2, CreatedAt: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)},
			SchoolID:     1,
			Name:         "Annual Admission Fee",
			AcademicYear: "2025-2026",
			Category:     "admission",
			Components: models.FeeComponentList{
				{Category: "admission", Amount: 5000},
			},
			TotalAmount: 5000,
			Frequency:   models.FrequencyAnnual,
			DueDay:      15,
			Discount: models.AdjustmentPolicy{
				Enabled: true,
				Type:    "percentage",
				Value:   10,
			},
			Status:      "active",
			CreatedByID: 2,
		},
	}

	for _, s := range structures {
		if err := database.DB.Create(&s).Error; err != nil {
			log.Printf("Error seeding fee structure %s: %v", s.Name, err)
		}
	}

	log.Println("Fee structures seeded successfully")
}
