// internal/models/application.go
package models

import "time"

// Application statuses
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Application is a visa application. There is at most one per user; repeated
// submissions overwrite the existing record in place.
type Application struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	Personal   PersonalInfo   `json:"personalInfo"`
	Address    AddressInfo    `json:"addressInfo"`
	Employment EmploymentInfo `json:"employmentInfo"`
	// VisaStart/VisaEnd are nil when the submitter has not provided them yet.
	// A nil VisaEnd makes the record indeterminate for expiry evaluation.
	VisaStart *time.Time `json:"visaStartDate,omitempty"`
	VisaEnd   *time.Time `json:"visaEndDate,omitempty"`
	Status    string     `json:"status"` // "pending", "approved", "rejected"
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type PersonalInfo struct {
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	PassportNo  string `json:"passportNumber,omitempty"`
	Nationality string `json:"nationality,omitempty"`
}

type AddressInfo struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zipCode,omitempty"`
	Country string `json:"country,omitempty"`
}

type EmploymentInfo struct {
	Employer     string `json:"employer,omitempty"`
	JobTitle     string `json:"jobTitle,omitempty"`
	LCANumber    string `json:"lcaNumber,omitempty"`
	AnnualWage   int    `json:"annualWage,omitempty"`
	WorkLocation string `json:"workLocation,omitempty"`
}
